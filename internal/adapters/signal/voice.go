package signal

import (
	"context"
	"encoding/json"
	"errors"

	mediasoup "github.com/jiyeyuran/mediasoup-go/v2"
	"github.com/rs/zerolog/log"

	"github.com/gavelinrobert-beep/Hearth/internal/auth"
	"github.com/gavelinrobert-beep/Hearth/internal/core"
	"github.com/gavelinrobert-beep/Hearth/internal/domain"
)

var (
	errBadPayload      = errors.New("bad payload")
	errUnknownRequest  = errors.New("unknown request type")
	errUnsupportedKind = errors.New("unsupported media kind")
	errBadDirection    = errors.New("direction must be send or recv")
	errJoinFlood       = errors.New("too many join attempts")
)

// handleRequest answers every parsed request frame with exactly one
// response carrying the request id, success payload or error string.
func (g *Gateway) handleRequest(id auth.Identity, conn *wsConn, data []byte) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("user", string(id.UserID)).Msg("bad json")
		return
	}

	ctx := context.Background()
	var result any
	var err error

	switch req.Type {
	case "voice-get-rtp-capabilities":
		result, err = g.handleGetCapabilities(ctx, id, req.Data)
	case "voice-join":
		result, err = g.handleJoin(ctx, id, conn, req.Data)
	case "voice-leave":
		result, err = g.handleLeave(ctx, id, req.Data)
	case "voice-create-transport":
		result, err = g.handleCreateTransport(ctx, id, req.Data)
	case "voice-connect-transport":
		result, err = g.handleConnectTransport(ctx, id, req.Data)
	case "voice-produce":
		result, err = g.handleProduce(ctx, id, req.Data)
	case "voice-consume":
		result, err = g.handleConsume(ctx, id, req.Data)
	case "typing-start", "typing-stop":
		g.handleTyping(ctx, id, req.Type, req.Data)
		return
	default:
		err = errUnknownRequest
	}

	g.respond(conn, req.ID, result, err)
}

func (g *Gateway) respond(conn *wsConn, id int64, result any, err error) {
	resp := Response{Type: "response", ID: id}
	if err != nil {
		resp.Error = err.Error()
	} else {
		resp.Data = result
	}
	b, merr := json.Marshal(resp)
	if merr != nil {
		log.Error().Err(merr).Str("module", "signal").Msg("response marshal")
		return
	}
	if serr := conn.trySend(b); serr != nil {
		log.Debug().Err(serr).Str("module", "signal").Msg("response dropped")
	}
}

// validateVoiceChannel runs the preconditions shared by every voice
// request: the channel exists, is voice-typed, and the caller belongs to
// its server.
func (g *Gateway) validateVoiceChannel(ctx context.Context, userID domain.UserID, channelID domain.ChannelID) (*domain.Channel, error) {
	ch, err := g.directory.Channel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if !ch.IsVoice() {
		return nil, core.ErrNotAVoiceChannel
	}
	member, err := g.directory.IsMember(ctx, ch.ServerID, userID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, core.ErrNotAMember
	}
	return ch, nil
}

func (g *Gateway) handleGetCapabilities(ctx context.Context, id auth.Identity, data []byte) (any, error) {
	var p channelPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errBadPayload
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return nil, err
	}
	router, err := g.media.GetOrCreateRouter(ctx, p.ChannelID)
	if err != nil {
		return nil, core.ErrEngineUnavailable
	}
	return capabilitiesResult{RtpCapabilities: router.RtpCapabilities()}, nil
}

func (g *Gateway) handleJoin(ctx context.Context, id auth.Identity, conn *wsConn, data []byte) (any, error) {
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errBadPayload
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return nil, err
	}
	if !g.joins.Allow(id.UserID) {
		return nil, errJoinFlood
	}

	// A room can close between lookup and join when its last participant
	// left concurrently; the closed room is gone from the registry by
	// then, so retrying lands on a fresh one.
	provide := func(ctx context.Context) (core.Router, error) {
		return g.media.GetOrCreateRouter(ctx, p.ChannelID)
	}
	for {
		room, err := g.registry.GetOrCreate(ctx, p.ChannelID, provide)
		if err != nil {
			return nil, core.ErrEngineUnavailable
		}
		roster, err := room.Join(id.UserID, id.Username, p.RtpCapabilities, conn)
		if errors.Is(err, core.ErrRoomClosed) {
			g.registry.RemoveIfEmpty(p.ChannelID)
			continue
		}
		if err != nil {
			return nil, err
		}
		return joinResult{Participants: roster}, nil
	}
}

func (g *Gateway) handleLeave(ctx context.Context, id auth.Identity, data []byte) (any, error) {
	var p channelPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errBadPayload
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return nil, err
	}
	room, ok := g.registry.Get(p.ChannelID)
	if !ok || !room.Leave(id.UserID) {
		return nil, core.ErrNotInVoiceChannel
	}
	g.registry.RemoveIfEmpty(p.ChannelID)
	return successResult{Success: true}, nil
}

func (g *Gateway) handleCreateTransport(ctx context.Context, id auth.Identity, data []byte) (any, error) {
	var p createTransportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errBadPayload
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return nil, err
	}
	dir, ok := core.ParseDirection(p.Direction)
	if !ok {
		return nil, errBadDirection
	}
	room, ok := g.registry.Get(p.ChannelID)
	if !ok {
		return nil, core.ErrNotInVoiceChannel
	}
	opts, err := room.CreateTransport(ctx, id.UserID, dir)
	if err != nil {
		return nil, err
	}
	return transportResult{TransportOptions: opts}, nil
}

func (g *Gateway) handleConnectTransport(ctx context.Context, id auth.Identity, data []byte) (any, error) {
	var p connectTransportPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errBadPayload
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return nil, err
	}
	room, ok := g.registry.Get(p.ChannelID)
	if !ok {
		return nil, core.ErrNotInVoiceChannel
	}
	if err := room.ConnectTransport(ctx, id.UserID, p.TransportID, p.DtlsParameters); err != nil {
		return nil, err
	}
	return successResult{Success: true}, nil
}

func (g *Gateway) handleProduce(ctx context.Context, id auth.Identity, data []byte) (any, error) {
	var p producePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errBadPayload
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return nil, err
	}
	if mediasoup.MediaKind(p.Kind) != mediasoup.MediaKindAudio {
		return nil, errUnsupportedKind
	}
	room, ok := g.registry.Get(p.ChannelID)
	if !ok {
		return nil, core.ErrNotInVoiceChannel
	}
	producerID, err := room.Produce(ctx, id.UserID, p.TransportID, mediasoup.MediaKindAudio, p.RtpParameters)
	if err != nil {
		return nil, err
	}
	return produceResult{ProducerID: producerID}, nil
}

func (g *Gateway) handleConsume(ctx context.Context, id auth.Identity, data []byte) (any, error) {
	var p consumePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, errBadPayload
	}
	if _, err := g.validateVoiceChannel(ctx, id.UserID, p.ChannelID); err != nil {
		return nil, err
	}
	room, ok := g.registry.Get(p.ChannelID)
	if !ok {
		return nil, core.ErrNotInVoiceChannel
	}
	opts, err := room.Consume(ctx, id.UserID, p.ProducerUserID, p.TransportID)
	if err != nil {
		return nil, err
	}
	return consumeResult{ConsumerOptions: opts}, nil
}

// sweep releases every voice resource of a vanished user: leave each room
// the user occupies, then reap the ones left empty.
func (g *Gateway) sweep(userID domain.UserID) {
	for _, room := range g.registry.RoomsWith(userID) {
		if room.Leave(userID) {
			g.registry.RemoveIfEmpty(room.ChannelID())
		}
	}
}
