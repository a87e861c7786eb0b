package gateway

import (
	"encoding/json"

	"github.com/mcdev12/tierdrift/internal/game"
)

// ClientMessage is the inbound envelope: an event name plus its payload.
type ClientMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Inbound event names.
const (
	MsgRoomCreate     = "room:create"
	MsgRoomJoin       = "room:join"
	MsgRoomLeave      = "room:leave"
	MsgRoomClose      = "room:close"
	MsgRoomSetTierSet = "room:setTierSet"
	MsgRoomStart      = "room:start"
	MsgRoomRematchOpt = "room:rematchOptIn"
	MsgRoomRematch    = "room:rematch"
	MsgRoomBoot       = "room:boot"
	MsgGamePlace      = "game:place"
	MsgGameVote       = "game:vote"
	MsgGameConfirm    = "game:confirmVote"
	MsgTierSetsList   = "tierSets:list"
	MsgTierSetsGet    = "tierSets:get"
	MsgDebugNext      = "debug:next"
	MsgDebugPrev      = "debug:prev"
)

// Outbound event names.
const (
	MsgRoomState      = "room:state"
	MsgRoomCreated    = "room:created"
	MsgRoomJoined     = "room:joined"
	MsgRoomError      = "room:error"
	MsgRoomClosed     = "room:closed"
	MsgRoomKicked     = "room:kicked"
	MsgTierSetsListed = "tierSets:listed"
	MsgTierSetsGot    = "tierSets:got"
)

// Role a connection requests when creating or joining a session.
const (
	RoleHost     = "host"
	RolePlayer   = "player"
	RoleObserver = "observer"
)

type createPayload struct {
	Role string `json:"role"`
}

type joinPayload struct {
	Code     string `json:"code"`
	Role     string `json:"role"`
	Name     string `json:"name"`
	DeviceID string `json:"deviceId"`
}

type setTierSetPayload struct {
	TierSetID string `json:"tierSetId"`
}

type bootPayload struct {
	PlayerID string `json:"playerId"`
}

type placePayload struct {
	TierID string `json:"tierId"`
}

type votePayload struct {
	Vote game.VoteValue `json:"vote"`
}

type tierSetGetPayload struct {
	ID string `json:"id"`
}

// ServerMessage is the outbound envelope.
type ServerMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

func encode(msgType string, data interface{}) []byte {
	raw, err := json.Marshal(ServerMessage{Type: msgType, Data: data})
	if err != nil {
		// Payloads are our own structs; a marshal failure is a programming
		// error worth failing loudly on.
		panic(err)
	}
	return raw
}
