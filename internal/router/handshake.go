// internal/router/handshake.go
// Connection handshake: the router expects a single text frame carrying JSON
// {token?, workspace?, client_id?} and replies with a connection_info
// message.
package router

import (
	"encoding/json"

	"github.com/Voskan/hyphagw/internal/auth"
	"github.com/Voskan/hyphagw/internal/errs"
	"github.com/Voskan/hyphagw/internal/transport"
	"github.com/Voskan/hyphagw/internal/workspace"
)

type handshakeRequest struct {
	Token     string `json:"token"`
	Workspace string `json:"workspace"`
	ClientID  string `json:"client_id"`
}

type userInfo struct {
	ID          string   `json:"id"`
	Email       string   `json:"email,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	IsAnonymous bool     `json:"is_anonymous"`
}

type connectionInfo struct {
	Type              string   `json:"type"`
	HyphaVersion      string   `json:"hypha_version"`
	ManagerID         string   `json:"manager_id"`
	Workspace         string   `json:"workspace"`
	ClientID          string   `json:"client_id"`
	User              userInfo `json:"user"`
	ReconnectionToken string   `json:"reconnection_token,omitempty"`
}

// Handshake authenticates and places a newly-connected transport, returning
// the new Peer and the JSON body of the connection_info reply. On error the
// caller must close the transport with WebSocket code 1008 and the error's
// Kind as reason.
func (r *Router) Handshake(t transport.Transport, raw []byte) (*workspace.Peer, []byte, error) {
	var req handshakeRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, nil, errs.Wrap(errs.MalformedFrame, err, "handshake payload is not valid JSON")
		}
	}

	payload, err := r.Authn.Authenticate(req.Token)
	if err != nil {
		return nil, nil, err
	}
	identity := auth.ResolveIdentity(payload)

	requestedWs := req.Workspace
	if requestedWs == "" {
		requestedWs = payload.Workspace
	}
	requestedClient := req.ClientID
	if requestedClient == "" {
		requestedClient = payload.ClientID
	}

	p, w, err := r.Spaces.ConnectPeer(identity, requestedWs, requestedClient, t)
	if err != nil {
		return nil, nil, err
	}

	r.ensureWorkspaceService(w)

	reconnToken, tokErr := r.Authn.GenerateToken(auth.GenerateConfig{
		UserID:    identity.UserID,
		Workspace: w.ID,
		ClientID:  p.ClientID,
	}, identity, w.ID)
	if tokErr != nil {
		reconnToken = ""
	}

	info := connectionInfo{
		Type:         "connection_info",
		HyphaVersion: r.cfg.HyphaVersion,
		ManagerID:    r.cfg.ManagerID,
		Workspace:    w.ID,
		ClientID:     p.ClientID,
		User: userInfo{
			ID:          identity.UserID,
			Email:       identity.Email,
			Roles:       identity.Roles,
			IsAnonymous: identity.IsAnonymous,
		},
		ReconnectionToken: reconnToken,
	}
	body, err := json.Marshal(info)
	if err != nil {
		return nil, nil, err
	}
	return p, body, nil
}
