package error

// GenericError is implemented by errors that carry an HTTP mapping. The REST
// recovery middleware uses it to translate panics into structured responses.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
