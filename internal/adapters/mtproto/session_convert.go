package mtproto

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/gotd/td/crypto"
	"github.com/gotd/td/session"
	"github.com/gotd/td/tg"
)

// ErrUnsupportedSessionFormat формат файла сессии не распознан.
var ErrUnsupportedSessionFormat = errors.New("unsupported MTProto session format")

// ImportedSession результат разбора файла сессии.
type ImportedSession struct {
	Data      []byte
	Converted bool
}

// ConvertSession приводит экспорт сессии к JSON, который читает session.Storage.
// Поддерживаются JSON gotd, строковая сессия Telethon, аккаунт-JSON с extra_params
// и выгрузка таблицы sessions.
func ConvertSession(raw []byte) (ImportedSession, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ImportedSession{}, errors.New("MTProto session is empty")
	}

	var native struct {
		Version int `json:"Version"`
	}
	if err := json.Unmarshal(trimmed, &native); err == nil && native.Version != 0 {
		return ImportedSession{Data: bytes.Clone(trimmed)}, nil
	}

	converters := []func([]byte) ([]byte, error){
		fromAccountJSON,
		fromSessionRows,
		fromStringSession,
	}
	for _, convert := range converters {
		if data, err := convert(trimmed); err == nil {
			return ImportedSession{Data: data, Converted: true}, nil
		}
	}
	return ImportedSession{}, ErrUnsupportedSessionFormat
}

func fromAccountJSON(raw []byte) ([]byte, error) {
	var account struct {
		ExtraParams string `json:"extra_params"`
	}
	if err := json.Unmarshal(raw, &account); err != nil {
		return nil, err
	}
	if account.ExtraParams == "" {
		return nil, errors.New("account JSON lacks extra_params")
	}
	return fromStringSession([]byte(account.ExtraParams))
}

type sessionRow struct {
	DCID          int    `json:"dc_id"`
	ServerAddress string `json:"server_address"`
	Port          int    `json:"port"`
	AuthKey       string `json:"auth_key"`
}

func fromSessionRows(raw []byte) ([]byte, error) {
	var rows []sessionRow
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.AuthKey == "" || row.ServerAddress == "" || row.Port == 0 {
			continue
		}
		return sessionFromRow(row)
	}
	return nil, errors.New("session rows have no usable entry")
}

func fromStringSession(raw []byte) ([]byte, error) {
	candidate := strings.Trim(strings.TrimSpace(string(raw)), "\"'\n\r\t")
	if candidate == "" {
		return nil, errors.New("string session is empty")
	}
	data, err := session.TelethonSession(candidate)
	if err != nil {
		return nil, err
	}
	if data.Config.ThisDC == 0 {
		data.Config.ThisDC = data.DC
	}
	if data.Addr != "" && len(data.Config.DCOptions) == 0 {
		if host, port, err := splitAddr(data.Addr); err == nil {
			data.Config.DCOptions = []tg.DCOption{{ID: data.DC, IPAddress: host, Port: port}}
		}
	}
	return encodeSession(*data)
}

func sessionFromRow(row sessionRow) ([]byte, error) {
	keyHex := strings.Trim(strings.TrimSpace(row.AuthKey), "'\"")
	rawKey, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("decode auth_key: %w", err)
	}
	var key crypto.Key
	if len(rawKey) != len(key) {
		return nil, fmt.Errorf("unexpected auth_key length: %d bytes", len(rawKey))
	}
	copy(key[:], rawKey)
	id := key.WithID().ID

	return encodeSession(session.Data{
		Config: session.Config{
			ThisDC:    row.DCID,
			DCOptions: []tg.DCOption{{ID: row.DCID, IPAddress: row.ServerAddress, Port: row.Port}},
		},
		DC:        row.DCID,
		Addr:      net.JoinHostPort(row.ServerAddress, strconv.Itoa(row.Port)),
		AuthKey:   bytes.Clone(key[:]),
		AuthKeyID: bytes.Clone(id[:]),
	})
}

func splitAddr(addr string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, err
	}
	return host, port, nil
}

func encodeSession(data session.Data) ([]byte, error) {
	return json.Marshal(struct {
		Version int          `json:"Version"`
		Data    session.Data `json:"Data"`
	}{Version: 1, Data: data})
}
