package session

// Status is the outcome code of a session operation, aligned with the hub
// API's HTTP-style result codes.
type Status int

const (
	StatusOK                 Status = 200
	StatusBadRequest         Status = 400
	StatusUnauthorized       Status = 401
	StatusNotFound           Status = 404
	StatusTimeout            Status = 408
	StatusConflict           Status = 409
	StatusServerError        Status = 500
	StatusServiceUnavailable Status = 503
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusUnauthorized:
		return "UNAUTHORIZED"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusTimeout:
		return "TIMEOUT"
	case StatusConflict:
		return "CONFLICT"
	case StatusServerError:
		return "SERVER_ERROR"
	case StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	}
	return "UNKNOWN"
}
