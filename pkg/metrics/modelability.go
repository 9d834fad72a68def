package metrics

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ModelabilityOptions tunes the cross-validated property regression.
type ModelabilityOptions struct {
	// NSplits is the fold count; at least 2.
	NSplits int
	// NormalizeInputs standardizes features per fold, with statistics
	// from the training fold only. The target is left unscaled; the
	// error ratio is invariant to its scale.
	NormalizeInputs bool
	// ReturnPredictions includes full-data predictions in the result.
	ReturnPredictions bool
	// Seed fixes the fold shuffle so reruns reproduce their splits.
	Seed int64
}

// ModelabilityResult reports how predictive each feature space is of a
// property. Ratio > 1 means the embedding space carries a smaller held-out
// error than the fingerprint baseline, i.e. the embedding models the
// property better.
type ModelabilityResult struct {
	Ratio            float64
	EmbeddingError   float64
	FingerprintError float64
	EmbeddingPred    []float64
	FingerprintPred  []float64
}

const ridgeLambda = 1.0

// Modelability runs NSplits-fold cross-validation of a ridge regressor
// from embeddings to the property and from structural fingerprints to the
// property, reporting mean held-out squared error of each and their ratio.
// Rows whose property value is NaN are dropped first.
func Modelability(embeddings, fingerprints [][]float64, property []float64, opts ModelabilityOptions) (ModelabilityResult, error) {
	if opts.NSplits < 2 {
		return ModelabilityResult{}, fmt.Errorf("%w: modelability needs n_splits >= 2", ErrComputation)
	}
	if len(embeddings) != len(property) || len(fingerprints) != len(property) {
		return ModelabilityResult{}, fmt.Errorf("%w: %d embeddings, %d fingerprints, %d property values",
			ErrComputation, len(embeddings), len(fingerprints), len(property))
	}

	var emb, fp [][]float64
	var y []float64
	for i, v := range property {
		if math.IsNaN(v) {
			continue
		}
		emb = append(emb, embeddings[i])
		fp = append(fp, fingerprints[i])
		y = append(y, v)
	}
	if len(y) < 2*opts.NSplits {
		return ModelabilityResult{}, fmt.Errorf("%w: %d labeled molecules is too few for %d folds",
			ErrComputation, len(y), opts.NSplits)
	}

	embErr, embPred, err := crossValidate(emb, y, opts)
	if err != nil {
		return ModelabilityResult{}, err
	}
	fpErr, fpPred, err := crossValidate(fp, y, opts)
	if err != nil {
		return ModelabilityResult{}, err
	}

	res := ModelabilityResult{
		Ratio:            fpErr / embErr,
		EmbeddingError:   embErr,
		FingerprintError: fpErr,
	}
	if opts.ReturnPredictions {
		res.EmbeddingPred = embPred
		res.FingerprintPred = fpPred
	}
	return res, nil
}

// crossValidate returns the mean held-out MSE over the folds, plus
// full-data predictions from the model fitted on the last fold.
func crossValidate(X [][]float64, y []float64, opts ModelabilityOptions) (float64, []float64, error) {
	folds := kfold(len(y), opts.NSplits, opts.Seed)

	var mses []float64
	var lastModel *ridge
	var lastScaler *scaler
	for _, test := range folds {
		inTest := make([]bool, len(y))
		for _, i := range test {
			inTest[i] = true
		}
		var xtrain, xtest [][]float64
		var ytrain, ytest []float64
		for i := range y {
			if inTest[i] {
				xtest = append(xtest, X[i])
				ytest = append(ytest, y[i])
			} else {
				xtrain = append(xtrain, X[i])
				ytrain = append(ytrain, y[i])
			}
		}

		var sc *scaler
		if opts.NormalizeInputs {
			// Statistics come from the training fold only; the test
			// fold must not leak into them.
			sc = fitScaler(xtrain)
			xtrain = sc.transform(xtrain)
			xtest = sc.transform(xtest)
		}

		model, err := fitRidge(xtrain, ytrain, ridgeLambda)
		if err != nil {
			return 0, nil, err
		}
		pred := model.predict(xtest)
		mses = append(mses, meanSquaredError(pred, ytest))
		lastModel, lastScaler = model, sc
	}

	var preds []float64
	if lastModel != nil {
		full := X
		if lastScaler != nil {
			full = lastScaler.transform(X)
		}
		preds = lastModel.predict(full)
	}
	return stat.Mean(mses, nil), preds, nil
}

// kfold partitions n indexes into k shuffled test folds.
func kfold(n, k int, seed int64) [][]int {
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	folds := make([][]int, k)
	for i, p := range perm {
		folds[i%k] = append(folds[i%k], p)
	}
	return folds
}

// scaler standardizes columns to zero mean and unit variance.
type scaler struct {
	mean, std []float64
}

func fitScaler(X [][]float64) *scaler {
	d := len(X[0])
	s := &scaler{mean: make([]float64, d), std: make([]float64, d)}
	col := make([]float64, len(X))
	for j := 0; j < d; j++ {
		for i := range X {
			col[i] = X[i][j]
		}
		m, sd := stat.MeanStdDev(col, nil)
		if sd == 0 || math.IsNaN(sd) {
			sd = 1
		}
		s.mean[j] = m
		s.std[j] = sd
	}
	return s
}

func (s *scaler) transform(X [][]float64) [][]float64 {
	out := make([][]float64, len(X))
	for i, row := range X {
		r := make([]float64, len(row))
		for j, v := range row {
			r[j] = (v - s.mean[j]) / s.std[j]
		}
		out[i] = r
	}
	return out
}

// ridge is a linear model fitted by ridge regression with a bias term.
type ridge struct {
	beta *mat.VecDense // d+1 coefficients, bias last
}

// fitRidge solves (XtX + lambda*I) beta = Xt y on the bias-augmented
// design matrix.
func fitRidge(X [][]float64, y []float64, lambda float64) (*ridge, error) {
	n := len(X)
	d := len(X[0]) + 1

	design := mat.NewDense(n, d, nil)
	for i, row := range X {
		for j, v := range row {
			design.Set(i, j, v)
		}
		design.Set(i, d-1, 1)
	}
	yv := mat.NewVecDense(n, y)

	var xtx mat.Dense
	xtx.Mul(design.T(), design)
	sym := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			v := xtx.At(i, j)
			if i == j {
				v += lambda
			}
			sym.SetSym(i, j, v)
		}
	}

	var xty mat.VecDense
	xty.MulVec(design.T(), yv)

	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return nil, fmt.Errorf("%w: ridge system not positive definite", ErrComputation)
	}
	beta := mat.NewVecDense(d, nil)
	if err := chol.SolveVecTo(beta, &xty); err != nil {
		return nil, fmt.Errorf("%w: ridge solve: %v", ErrComputation, err)
	}
	return &ridge{beta: beta}, nil
}

func (r *ridge) predict(X [][]float64) []float64 {
	d := r.beta.Len()
	out := make([]float64, len(X))
	for i, row := range X {
		v := r.beta.AtVec(d - 1)
		for j, x := range row {
			v += r.beta.AtVec(j) * x
		}
		out[i] = v
	}
	return out
}

func meanSquaredError(pred, truth []float64) float64 {
	var sum float64
	for i := range pred {
		d := pred[i] - truth[i]
		sum += d * d
	}
	return sum / float64(len(pred))
}
