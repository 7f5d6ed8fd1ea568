package bridge

// Status strings published, retained, to the status topic over the
// lifetime of a run. Subscribers see STARTED, CONNECTED (repeated on
// every successful broker connect), KLF200_available, then on shutdown
// DISCONNECTING KLF, DISCONNECTED KLF and finally DISCONNECTED.
const (
	StatusStarted          = "STARTED"
	StatusConnected        = "CONNECTED"
	StatusHubAvailable     = "KLF200_available"
	StatusDisconnectingHub = "DISCONNECTING KLF"
	StatusDisconnectedHub  = "DISCONNECTED KLF"
	StatusDisconnected     = "DISCONNECTED"
)
