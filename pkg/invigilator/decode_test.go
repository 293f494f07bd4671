package invigilator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"edsl/pkg/question"
)

func TestDecodeResponseEnvelope(t *testing.T) {
	q := question.Question{Name: "q1", Type: question.TypeFreeText}
	answer, comment := decodeResponse(q, `{"answer": "blue", "comment": "liked it"}`)
	require.Equal(t, "blue", answer)
	require.Equal(t, "liked it", comment)
}

func TestDecodeResponseBareArray(t *testing.T) {
	q := question.Question{Name: "q1", Type: question.TypeCheckbox}
	answer, _ := decodeResponse(q, `["a", "b"]`)
	require.Equal(t, []any{"a", "b"}, answer)
}

func TestDecodeResponsePlainListText(t *testing.T) {
	q := question.Question{Name: "q1", Type: question.TypeList}
	answer, _ := decodeResponse(q, "- apples\n- oranges\n")
	require.Equal(t, []string{"apples", "oranges"}, answer)
}

func TestDecodeResponseNumerical(t *testing.T) {
	q := question.Question{Name: "q1", Type: question.TypeNumerical}
	answer, _ := decodeResponse(q, "  42.5  ")
	require.Equal(t, 42.5, answer)
}

func TestDecodeResponseFreeTextScalar(t *testing.T) {
	q := question.Question{Name: "q1", Type: question.TypeFreeText}
	answer, _ := decodeResponse(q, "just some text")
	require.Equal(t, "just some text", answer)
}
