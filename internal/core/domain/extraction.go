package domain

// Extraction is the text pulled out of one request and its response
type Extraction struct {
	Model         string
	Prompt        string
	Completion    string
	HasCompletion bool
}
