package velux

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// KLF200 API command codes used by this bridge.
const (
	cmdErrorNtf uint16 = 0x0000

	cmdPasswordEnterReq uint16 = 0x3000
	cmdPasswordEnterCfm uint16 = 0x3001

	cmdHouseStatusMonitorEnableReq uint16 = 0x0240
	cmdHouseStatusMonitorEnableCfm uint16 = 0x0241

	cmdGetAllNodesInformationReq         uint16 = 0x0202
	cmdGetAllNodesInformationCfm         uint16 = 0x0203
	cmdGetAllNodesInformationNtf         uint16 = 0x0204
	cmdGetAllNodesInformationFinishedNtf uint16 = 0x0205

	cmdNodeStatePositionChangedNtf uint16 = 0x0211

	cmdCommandSendReq      uint16 = 0x0300
	cmdCommandSendCfm      uint16 = 0x0301
	cmdCommandRunStatusNtf uint16 = 0x0302
	cmdCommandRemainingNtf uint16 = 0x0303
	cmdSessionFinishedNtf  uint16 = 0x030F
)

// Gateway error codes carried by GW_ERROR_NTF.
var gatewayErrorText = map[byte]string{
	0:  "unspecified error",
	1:  "unknown command",
	2:  "error on frame structure",
	7:  "busy, try again later",
	8:  "bad system table index",
	12: "not authenticated",
}

// passwordLength is the fixed size of the password field in
// GW_PASSWORD_ENTER_REQ. Longer passwords are rejected by the gateway.
const passwordLength = 32

// buildPasswordEnter builds the GW_PASSWORD_ENTER_REQ payload.
func buildPasswordEnter(password string) ([]byte, error) {
	if len(password) > passwordLength {
		return nil, fmt.Errorf("%w: password exceeds %d bytes", ErrAuthFailed, passwordLength)
	}
	data := make([]byte, passwordLength)
	copy(data, password)
	return data, nil
}

// commandSendPayloadSize is the fixed size of GW_COMMAND_SEND_REQ:
// session(2) originator(1) priority(1) parameterActive(1) fpi1(1) fpi2(1)
// mainParameter+fp1..fp16(34) indexCount(1) indexArray(20)
// priorityLevelLock(1) pl03(1) pl47(1) lockTime(1).
const commandSendPayloadSize = 66

// buildCommandSend builds a GW_COMMAND_SEND_REQ moving a single node's
// main parameter to the given raw position.
func buildCommandSend(sessionID uint16, nodeID uint8, target Position) []byte {
	data := make([]byte, commandSendPayloadSize)
	binary.BigEndian.PutUint16(data[0:2], sessionID)
	data[2] = 1 // CommandOriginator: user
	data[3] = 3 // PriorityLevel: user level 2
	data[4] = 0 // ParameterActive: main parameter
	binary.BigEndian.PutUint16(data[7:9], uint16(target))
	data[41] = 1 // IndexArrayCount
	data[42] = nodeID
	return data
}

// parseCommandSendCfm parses GW_COMMAND_SEND_CFM.
func parseCommandSendCfm(data []byte) (sessionID uint16, accepted bool, err error) {
	if len(data) < 3 {
		return 0, false, fmt.Errorf("%w: command confirm truncated", ErrBadFrame)
	}
	return binary.BigEndian.Uint16(data[0:2]), data[2] == 1, nil
}

// parsePasswordEnterCfm parses GW_PASSWORD_ENTER_CFM. Status 0 means
// the password was accepted.
func parsePasswordEnterCfm(data []byte) (bool, error) {
	if len(data) < 1 {
		return false, fmt.Errorf("%w: password confirm truncated", ErrBadFrame)
	}
	return data[0] == 0, nil
}

// parseAllNodesCfm parses GW_GET_ALL_NODES_INFORMATION_CFM and returns
// the number of node notifications that will follow.
func parseAllNodesCfm(data []byte) (int, error) {
	if len(data) < 2 {
		return 0, fmt.Errorf("%w: node information confirm truncated", ErrBadFrame)
	}
	if data[0] != 0 {
		// Status 1 means the system table is empty.
		return 0, nil
	}
	return int(data[1]), nil
}

// nodeInfoSize is the fixed size of GW_GET_ALL_NODES_INFORMATION_NTF.
const nodeInfoSize = 124

// parseNodeInfoNtf parses GW_GET_ALL_NODES_INFORMATION_NTF into a Node.
//
// Layout: nodeID(1) order(2) placement(1) name(64) velocity(1)
// nodeTypeSubType(2) productGroup(1) productType(1) nodeVariation(1)
// powerMode(1) buildNumber(1) serialNumber(8) state(1)
// currentPosition(2) target(2) fp1..fp4(8) remainingTime(2)
// timestamp(4) nbrOfAlias(1) aliases(20).
func parseNodeInfoNtf(data []byte) (Node, error) {
	if len(data) < nodeInfoSize {
		return Node{}, fmt.Errorf("%w: node information truncated (%d bytes)", ErrBadFrame, len(data))
	}

	name := decodeNodeName(data[4:68])
	return Node{
		ID:       data[0],
		Name:     name,
		TypeSub:  binary.BigEndian.Uint16(data[69:71]),
		Position: Position(binary.BigEndian.Uint16(data[85:87])),
	}, nil
}

// positionChangedSize is the fixed size of
// GW_NODE_STATE_POSITION_CHANGED_NTF: nodeID(1) state(1)
// currentPosition(2) target(2) fp1..fp4(8) remainingTime(2) timestamp(4).
const positionChangedSize = 20

// parsePositionChangedNtf parses GW_NODE_STATE_POSITION_CHANGED_NTF.
func parsePositionChangedNtf(data []byte) (nodeID uint8, current Position, err error) {
	if len(data) < positionChangedSize {
		return 0, 0, fmt.Errorf("%w: position notification truncated", ErrBadFrame)
	}
	return data[0], Position(binary.BigEndian.Uint16(data[2:4])), nil
}

// decodeNodeName trims the zero padding from a fixed-width UTF-8 name
// field.
func decodeNodeName(field []byte) string {
	if i := bytes.IndexByte(field, 0); i >= 0 {
		field = field[:i]
	}
	return string(field)
}

// gatewayError renders a GW_ERROR_NTF payload as text.
func gatewayError(data []byte) string {
	if len(data) < 1 {
		return "malformed error notification"
	}
	if text, ok := gatewayErrorText[data[0]]; ok {
		return text
	}
	return fmt.Sprintf("error code %d", data[0])
}
