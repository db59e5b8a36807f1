package facade

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jkfujinami/linepy/internal/lineerr"
	"github.com/jkfujinami/linepy/internal/transport"
)

// ObjectUploadResult is what a successful OBS upload returns: the id OBS
// assigned the object and its content hash.
type ObjectUploadResult struct {
	ObjectID string
	ObjHash  string
}

const (
	obsHeaderOid  = "X-Obs-Oid"  // response header name casing per net/http.Header.Get
	obsHeaderHash = "X-Obs-Hash"
	obsParamsHdr  = "X-Obs-Params"
)

// UploadObject uploads raw bytes to a square chat's OBS (Object Storage)
// endpoint. contentType is one of image/video/audio/file/gif; durationMs is
// only meaningful for video/audio and may be 0.
//
// Grounded on linepy/obs.py's ObsBase.upload_obj_square_chat: path
// `/r/g2/m/reqseq`, params base64(json)-encoded into X-Obs-Params
// (ver/type/oid=reqseq/reqseq/tomid/name[/cat|duration]), body is the raw
// object bytes, response carries the assigned id/hash in response headers
// rather than a JSON body.
func (c *Client) UploadObject(ctx context.Context, chatMid string, data []byte, contentType, filename string, reqSeq int64, durationMs int) (*ObjectUploadResult, error) {
	params := map[string]string{
		"ver":    "2.0",
		"type":   contentType,
		"oid":    "reqseq",
		"reqseq": fmt.Sprintf("%d", reqSeq),
		"tomid":  chatMid,
		"name":   filename,
	}
	switch contentType {
	case "image", "gif":
		params["cat"] = "original"
	case "video", "audio":
		if durationMs > 0 {
			params["duration"] = fmt.Sprintf("%d", durationMs)
		} else {
			params["duration"] = "1000"
		}
	}

	encodedParams, err := json.Marshal(params)
	if err != nil {
		return nil, lineerr.Wrap(lineerr.KindCodec, "marshal obs params", err)
	}

	hs := transport.HeaderSet{
		LogicalMethod: "POST",
		ContentType:   "application/octet-stream",
		Extra: map[string]string{
			obsParamsHdr: base64.StdEncoding.EncodeToString(encodedParams),
		},
	}

	_, status, headers, err := c.transport.RawCallWithResponseHeaders(ctx, c.scheme, c.resolveObsHost(), "/r/g2/m/reqseq", http.MethodPost, data, hs)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, lineerr.New(lineerr.KindTransport, "obs upload: unexpected status")
	}

	return &ObjectUploadResult{
		ObjectID: headers.Get(obsHeaderOid),
		ObjHash:  headers.Get(obsHeaderHash),
	}, nil
}
