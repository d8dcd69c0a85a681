package donut

import (
	"fmt"

	"github.com/joseph-ayodele/warrantyvault-ai/constants"
)

// Task markers of the DocVQA decoder grammar.
const (
	TaskStart     = "<s_docvqa>"
	QuestionStart = "<s_question>"
	QuestionEnd   = "</s_question>"
	AnswerStart   = "<s_answer>"
	AnswerEnd     = "</s_answer>"
)

var questions = map[constants.FieldName]string{
	constants.ProductName:   "What is the product name?",
	constants.OrderID:       "What is the order ID?",
	constants.InvoiceNumber: "What is the invoice number?",
	constants.TotalAmount:   "What is the total amount?",
	constants.PurchaseDate:  "What is the purchase date?",
	constants.Retailer:      "What is the retailer name?",
}

// Question returns the fixed natural-language question for field.
func Question(field constants.FieldName) string {
	if q, ok := questions[field]; ok {
		return q
	}
	return fmt.Sprintf("What is the %s?", field)
}

// DecoderSeed wraps question in the task markers that prime generation.
func DecoderSeed(question string) string {
	return TaskStart + QuestionStart + question + QuestionEnd + AnswerStart
}
