package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/jiminh03/BBATTY-sub001/internal/port"
)

// insecureVerifier accepts tokens of the form "userId:nickname:roomId". It
// exists for local development only; production wires the auth service's
// verifier through Collaborators.
type insecureVerifier struct{}

func (insecureVerifier) Verify(_ context.Context, token string) (port.Identity, error) {
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return port.Identity{}, fmt.Errorf("malformed development token")
	}
	return port.Identity{UserID: parts[0], Nickname: parts[1], RoomID: parts[2]}, nil
}
