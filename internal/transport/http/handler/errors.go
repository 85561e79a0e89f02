package handler

const (
	errInternalServer      = "Internal server error"
	errInvalidLoginRequest = "Username and password are required"
	errInvalidRegister     = "Username, a valid email and password are required"
	errInvalidEmailRequest = "A valid email is required"
	errInvalidResetRequest = "Token and password are required"
	errInvalidCredentials  = "Invalid username or password"
	errUsernameTaken       = "Username is already taken"
	errEmailTaken          = "Email is already registered"
	errTokenInvalid        = "Token is invalid or expired"
	errUnauthorized        = "Unauthorized"
	errServiceUnavailable  = "Service unavailable"
)
