package predict

import (
	"context"
	"fmt"

	"github.com/rlm-systems/rlm-runtime/internal/rlmerrors"
	"github.com/rlm-systems/rlm-runtime/internal/rlmtypes"
)

// Transform maps module A's outputs to module B's inputs. A transform
// that cannot produce valid B inputs should return a rlmerrors KindConfig
// error; Chain.Forward surfaces it without invoking B.
type Transform func(aOutputs map[string]interface{}) (map[string]interface{}, error)

// Chain calls A, applies transform to its outputs, then calls B with the
// result. staticErr, when set, short-circuits Forward before A or B run
// (used by ChainDirect's upfront field-compatibility check).
type Chain struct {
	a, b      *Predict
	transform Transform
	staticErr error
}

// NewChain constructs a Chain with an explicit transform.
func NewChain(a, b *Predict, transform Transform) *Chain {
	return &Chain{a: a, b: b, transform: transform}
}

// ChainDirect requires that every one of B's input fields has a
// same-named, same-type field in A's output (required B fields must be
// present; optional B fields may be absent). This is a static check over
// the two signatures, evaluated once here rather than per Forward call:
// a mismatch fails the chain's first Forward with a KindConfig error
// without invoking A or B at all, since the outcome can't depend on A's
// actual runtime output.
func ChainDirect(a, b *Predict) *Chain {
	aOutputs := a.Signature().Outputs
	bInputs := b.Signature().Inputs
	transform, staticErr := directTransform(aOutputs, bInputs)
	return &Chain{a: a, b: b, transform: transform, staticErr: staticErr}
}

func directTransform(aOutputs, bInputs []rlmtypes.FieldSpec) (Transform, error) {
	byName := make(map[string]rlmtypes.FieldSpec, len(aOutputs))
	for _, f := range aOutputs {
		byName[f.Name] = f
	}
	for _, bf := range bInputs {
		af, ok := byName[bf.Name]
		if !ok {
			if bf.Required {
				return nil, rlmerrors.New(rlmerrors.KindConfig,
					fmt.Sprintf("chain_direct field type mismatch: required field %q missing from upstream outputs", bf.Name))
			}
			continue
		}
		if af.Type != bf.Type {
			return nil, rlmerrors.New(rlmerrors.KindConfig,
				fmt.Sprintf("chain_direct field type mismatch: field %q is %s upstream but %s downstream", bf.Name, af.Type, bf.Type))
		}
	}

	transform := func(aResult map[string]interface{}) (map[string]interface{}, error) {
		out := make(map[string]interface{}, len(bInputs))
		for _, bf := range bInputs {
			if v, present := aResult[bf.Name]; present {
				out[bf.Name] = v
			} else if bf.Required {
				return nil, rlmerrors.New(rlmerrors.KindConfig,
					fmt.Sprintf("chain_direct field type mismatch: required field %q absent from upstream result", bf.Name))
			}
		}
		return out, nil
	}
	return transform, nil
}

// Forward calls a, transforms its outputs into b's inputs, and calls b.
// If ChainDirect found a static field mismatch, that error is returned
// immediately without invoking a or b.
func (c *Chain) Forward(ctx context.Context, inputs map[string]interface{}) (map[string]interface{}, error) {
	if c.staticErr != nil {
		return nil, c.staticErr
	}
	aOut, err := c.a.Forward(ctx, inputs)
	if err != nil {
		return nil, err
	}
	bIn, err := c.transform(aOut)
	if err != nil {
		return nil, err
	}
	return c.b.Forward(ctx, bIn)
}
