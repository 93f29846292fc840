package utils

// ResponseData is the envelope every REST handler returns.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}

// PanicIfNeeded panics on error so the recovery middleware can translate it
// into a structured response. Handlers stay linear; expected domain outcomes
// still travel as values, this is only for the request/response edge.
func PanicIfNeeded(err error) {
	if err != nil {
		panic(err)
	}
}
