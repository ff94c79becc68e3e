package transport

import (
	"github.com/jamesprial/oauth-resource-core/internal/transport/transportcore"
)

// ErrServerClosed indicates the server has been shut down and cannot be started again.
var ErrServerClosed = transportcore.ErrServerClosed
