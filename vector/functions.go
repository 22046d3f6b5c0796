package vector

import (
	"database/sql/driver"
	"fmt"
	"sync"

	"modernc.org/sqlite"
)

const (
	fnL2                   = "vec_l2"
	fnNegativeInnerProduct = "vec_negative_inner_product"
	fnCosineDistance       = "vec_cosine_distance"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs the distance functions into the modernc
// driver. Registration is process-wide and happens once.
func registerFunctions() error {
	registerOnce.Do(func() {
		fns := map[string]func(a, b []float32) float64{
			fnL2:                   L2Distance,
			fnNegativeInnerProduct: NegativeInnerProduct,
			fnCosineDistance:       CosineDistance,
		}
		for name, fn := range fns {
			if err := sqlite.RegisterDeterministicScalarFunction(name, 2, distanceImpl(name, fn)); err != nil {
				registerErr = fmt.Errorf("%s: %w", name, err)
				return
			}
		}
	})
	return registerErr
}

func distanceImpl(name string, fn func(a, b []float32) float64) func(*sqlite.FunctionContext, []driver.Value) (driver.Value, error) {
	return func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%s: expected 2 arguments, got %d", name, len(args))
		}
		a, err := asEmbedding(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		b, err := asEmbedding(args[1])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if a == nil || b == nil {
			return nil, nil
		}
		if len(a) != len(b) {
			return nil, fmt.Errorf("%s: dimension mismatch %d != %d", name, len(a), len(b))
		}
		return fn(a, b), nil
	}
}

func asEmbedding(arg driver.Value) ([]float32, error) {
	switch v := arg.(type) {
	case nil:
		return nil, nil
	case string:
		return DecodeEmbedding(v)
	case []byte:
		return DecodeEmbedding(string(v))
	default:
		return nil, fmt.Errorf("unsupported argument type %T for embedding; want TEXT", arg)
	}
}
