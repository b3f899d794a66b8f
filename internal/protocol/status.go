package protocol

import (
	"encoding/json"
	"fmt"
)

// StatusDocument is the JSON body of a StatusResponse.
type StatusDocument struct {
	Version     StatusVersion     `json:"version"`
	Players     StatusPlayers     `json:"players"`
	Description StatusDescription `json:"description"`
}

type StatusVersion struct {
	Name     string `json:"name"`
	Protocol int    `json:"protocol"`
}

type StatusPlayers struct {
	Max    int            `json:"max"`
	Online int            `json:"online"`
	Sample []StatusSample `json:"sample"`
}

type StatusSample struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

type StatusDescription struct {
	Text string `json:"text"`
}

// NewStatusDocument builds the status document for the given motd and counts.
func NewStatusDocument(motd string, maxPlayers, online int) StatusDocument {
	return StatusDocument{
		Version: StatusVersion{Name: VersionName, Protocol: ProtocolVersion},
		Players: StatusPlayers{
			Max:    maxPlayers,
			Online: online,
			Sample: []StatusSample{},
		},
		Description: StatusDescription{Text: motd},
	}
}

// NewStatusResponse renders doc into a StatusResponse packet.
func NewStatusResponse(doc StatusDocument) (StatusResponse, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return StatusResponse{}, fmt.Errorf("failed to marshal status document: %w", err)
	}
	return StatusResponse{JSON: string(data)}, nil
}
