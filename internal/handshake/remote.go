package handshake

import (
	"sync/atomic"

	"github.com/ravitejakamalapuram/copytradepro/internal/events"
)

// RemoteOpener asks the dashboard to open the auth surface by
// emitting an event on the bus. The popup itself lives in the
// browser, so the server's view of it is permanently cross-origin;
// the auth code comes back through the redirect callback or the
// signal socket, never through polling.
type RemoteOpener struct {
	eventManager *events.Manager
}

// NewRemoteOpener creates a surface opener backed by the dashboard.
func NewRemoteOpener(eventManager *events.Manager) *RemoteOpener {
	return &RemoteOpener{eventManager: eventManager}
}

// Open emits the open request and returns a surface standing in for
// the browser popup.
func (o *RemoteOpener) Open(authURL string) (Surface, error) {
	o.eventManager.Emit(events.AuthSurfaceRequested, "handshake", map[string]interface{}{
		"auth_url": authURL,
	})
	return &remoteSurface{}, nil
}

// remoteSurface is the server-side stand-in for a browser popup.
type remoteSurface struct {
	closed atomic.Bool
}

func (s *remoteSurface) Location() (string, error) {
	if s.closed.Load() {
		return "", ErrSurfaceClosed
	}
	return "", ErrCrossOrigin
}

func (s *remoteSurface) Close() error {
	s.closed.Store(true)
	return nil
}
