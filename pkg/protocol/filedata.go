package protocol

import (
	"encoding/base64"
	"errors"
	"strings"
)

var ErrBadFiledata = errors.New("filedata is not valid base64")

// EncodeFiledata produces the wire form of file contents: a data URI with a
// base64 payload, matching what browser FileReader clients send.
func EncodeFiledata(contents []byte) string {
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(contents)
}

// DecodeFiledata accepts either a bare base64 string or a data URI and
// returns the raw bytes.
func DecodeFiledata(filedata string) ([]byte, error) {
	if strings.HasPrefix(filedata, "data:") {
		idx := strings.Index(filedata, ",")
		if idx < 0 {
			return nil, ErrBadFiledata
		}
		filedata = filedata[idx+1:]
	}
	raw, err := base64.StdEncoding.DecodeString(filedata)
	if err != nil {
		return nil, ErrBadFiledata
	}
	return raw, nil
}
