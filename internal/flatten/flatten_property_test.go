package flatten

import (
	"fmt"
	"math/rand"
	"net/url"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/nanostore/pkg/types"
)

// genAttributes generates attribute trees covering every supported value
// kind, nested up to a few levels, including empty containers and nulls.
func genAttributes() gopter.Gen {
	return func(params *gopter.GenParameters) *gopter.GenResult {
		attrs := randomMap(params.Rng, 0)
		return gopter.NewGenResult(attrs, gopter.NoShrinker)
	}
}

func randomMap(rng *rand.Rand, depth int) map[string]any {
	n := rng.Intn(5)
	m := make(map[string]any, n)
	for i := 0; i < n; i++ {
		m[fmt.Sprintf("attr%d_%d", depth, rng.Intn(1000))] = randomValue(rng, depth+1)
	}
	return m
}

func randomValue(rng *rand.Rand, depth int) any {
	kinds := 9
	if depth >= 3 {
		kinds = 7 // leaves only
	}
	switch rng.Intn(kinds) {
	case 0:
		return fmt.Sprintf("text-%d", rng.Int63())
	case 1:
		b := make([]byte, rng.Intn(16))
		rng.Read(b)
		return b
	case 2:
		return time.UnixMilli(rng.Int63n(4102444800000)).UTC()
	case 3:
		return rng.Int63() - rng.Int63()
	case 4:
		return rng.NormFloat64() * 1e6
	case 5:
		if rng.Intn(2) == 0 {
			return nil
		}
		return rng.Intn(2) == 0
	case 6:
		u, _ := url.Parse(fmt.Sprintf("https://host%d.example.com/p/%d?q=%d", rng.Intn(10), rng.Intn(100), rng.Intn(100)))
		return u
	case 7:
		return randomMap(rng, depth)
	default:
		n := rng.Intn(4)
		list := make([]any, n)
		for i := range list {
			list[i] = randomValue(rng, depth+1)
		}
		return list
	}
}

func TestProperty_RoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("unflatten(flatten(d).snapshot) == d", prop.ForAll(
		func(attrs map[string]any) bool {
			row, _, err := Flatten(types.NewObjectWithKey("K", attrs))
			if err != nil {
				return false
			}
			back, err := Unflatten(row)
			if err != nil {
				return false
			}
			return types.EqualValues(back, attrs)
		},
		genAttributes(),
	))

	properties.Property("triple count equals leaf count", prop.ForAll(
		func(attrs map[string]any) bool {
			_, triples, err := Flatten(types.NewObjectWithKey("K", attrs))
			if err != nil {
				return false
			}
			return len(triples) == CountLeaves(attrs)
		},
		genAttributes(),
	))

	properties.Property("every triple path resolves to its leaf", prop.ForAll(
		func(attrs map[string]any) bool {
			_, triples, err := Flatten(types.NewObjectWithKey("K", attrs))
			if err != nil {
				return false
			}
			normalized, _ := types.Normalize(attrs)
			for _, tr := range triples {
				leaf, ok := Resolve(normalized, tr.Attribute)
				if !ok {
					return false
				}
				dt, err := types.Classify(leaf)
				if err != nil || dt != tr.Datatype {
					return false
				}
			}
			return true
		},
		genAttributes(),
	))

	properties.TestingRun(t)
}
