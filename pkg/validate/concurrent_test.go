package validate

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"edsl/pkg/question"
)

// TestRegistryConcurrentPydanticSchema exercises the path the scheduler's
// worker pool actually drives: many goroutines sharing one Registry (spec
// §4.3, §5 "shared resources"), each validating a pydantic_schema-typed
// answer across a handful of distinct question names so compileSchema's
// schemas map sees concurrent first-writes, and each also tripping a
// validation failure so logFailure's slice append is contended too. Run
// with `go test -race` to confirm there is no data race.
func TestRegistryConcurrentPydanticSchema(t *testing.T) {
	r := NewRegistry()

	schemaDoc := []byte(`{"type":"object","properties":{"name":{"type":"string"}},"required":["name"]}`)

	const questionCount = 8
	const workersPerQuestion = 16

	questions := make([]question.Question, questionCount)
	for i := range questions {
		questions[i] = question.Question{
			Name: fmt.Sprintf("pydantic_q%d", i),
			Type: question.TypePydanticSchema,
			Constraints: question.Constraints{
				SchemaJSON: schemaDoc,
			},
		}
	}

	var wg sync.WaitGroup
	for _, q := range questions {
		q := q
		for w := 0; w < workersPerQuestion; w++ {
			w := w
			wg.Add(1)
			go func() {
				defer wg.Done()
				if w%2 == 0 {
					res := r.Validate(context.Background(), q, map[string]any{"name": "ok"})
					require.True(t, res.Valid)
				} else {
					// Missing the required field: fails validation and
					// exercises logFailure concurrently too.
					res := r.Validate(context.Background(), q, map[string]any{})
					require.False(t, res.Valid)
				}
			}()
		}
	}
	wg.Wait()

	failures := r.Failures()
	require.Equal(t, questionCount*(workersPerQuestion/2), len(failures))
}
