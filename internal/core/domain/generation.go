package domain

type RequestKind string

const (
	RequestSimple  RequestKind = "simple"
	RequestComplex RequestKind = "complex"
)

type Outcome string

const (
	OutcomeGenerated Outcome = "generated"
	OutcomeNoContext Outcome = "no_context"
)

// NoContextMessage is shown to the user when retrieval found nothing above threshold.
const NoContextMessage = "I could not find any relevant information or code examples for your query. Please try being more specific."

type GenerationResult struct {
	Request string        `json:"request"`
	Kind    RequestKind   `json:"kind"`
	Plan    RetrievalPlan `json:"plan"`
	Context ContextSet    `json:"context"`
	Code    string        `json:"code,omitempty"`
	Outcome Outcome       `json:"outcome"`
}

type CompletionPurpose string

const (
	PurposeClassify   CompletionPurpose = "classify"
	PurposePlan       CompletionPurpose = "plan"
	PurposeSynthesize CompletionPurpose = "synthesize"
)

type CompletionRequest struct {
	Purpose     CompletionPurpose `json:"purpose"`
	Prompt      string            `json:"prompt"`
	Temperature float64           `json:"temperature"`
}

type CompletionResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}
