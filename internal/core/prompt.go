package core

import "fmt"

const ragPromptTemplate = `Based on the following information, answer the user's question.
If the information is not relevant, say you don't know from the provided documents.

Context:
%s

Question: %s`

// BuildRAGPrompt wraps query with the retrieved context.
func BuildRAGPrompt(context, query string) string {
	return fmt.Sprintf(ragPromptTemplate, context, query)
}
