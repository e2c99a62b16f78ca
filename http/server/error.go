package httpserver

// TimeoutMessage is the response body for request timeouts.
const TimeoutMessage = `{"detail":"Request timed out"}`
