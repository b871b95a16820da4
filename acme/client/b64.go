package client

import "encoding/base64"

func b64URL(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}
