package csp

// Envelope messages.
const (
	MessageOK                  = "Okay"
	MessageBadRequest          = "Bad Request"
	MessageMethodNotAllowed    = "Method Not Allowed"
	MessageInternalServerError = "Internal Server Error"
)

const (
	// GenericFaultText is returned when a fault carries no usable message.
	GenericFaultText = "An unexpected error occurred. Please try again later."

	// GenericParseFailureText is returned when the parser gives no diagnostic.
	GenericParseFailureText = "invalid report-uri payload"
)

// Envelope is the fixed two-field body returned for every request.
type Envelope struct {
	Message string  `json:"message"`
	Error   *string `json:"error"`
}

// OK returns the success envelope.
func OK() Envelope {
	return Envelope{Message: MessageOK}
}

// Failure returns an envelope carrying an error string.
func Failure(message, err string) Envelope {
	return Envelope{Message: message, Error: &err}
}
