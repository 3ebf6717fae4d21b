package provenance

import (
	"bytes"
	"encoding/json"
	"strings"

	jis "github.com/dsoprea/go-jpeg-image-structure/v2"
)

const (
	// jpegCommentTag prefixes our COM segment so foreign comments are left alone
	jpegCommentTag = "cardforge:"

	maxSegmentPayload = 0xFFFF - 2
)

var jpegParser = jis.NewJpegMediaParser()

func parseJPEG(data []byte) (*jis.SegmentList, error) {
	mc, err := jpegParser.ParseBytes(data)
	if err != nil {
		return nil, malformed("jpeg: %v", err)
	}
	sl, ok := mc.(*jis.SegmentList)
	if !ok {
		return nil, malformed("jpeg: unexpected parse result %T", mc)
	}
	segs := sl.Segments()
	if len(segs) == 0 || segs[0].MarkerId != jis.MARKER_SOI {
		return nil, malformed("jpeg does not start with SOI")
	}
	return sl, nil
}

func isOurComment(s *jis.Segment) bool {
	return s.MarkerId == jis.MARKER_COM && bytes.HasPrefix(s.Data, []byte(jpegCommentTag))
}

func isAppSegment(s *jis.Segment) bool {
	return s.MarkerId >= jis.MARKER_APP0 && s.MarkerId <= jis.MARKER_APP15
}

func embedJPEG(data []byte, m Metadata) ([]byte, error) {
	sl, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	comment := append([]byte(jpegCommentTag), payload...)
	if len(comment) > maxSegmentPayload {
		return nil, malformed("metadata too large for a jpeg comment (%d bytes)", len(comment))
	}
	com := &jis.Segment{MarkerId: jis.MARKER_COM, MarkerName: "COM", Data: comment}

	segs := sl.Segments()
	out := make([]*jis.Segment, 0, len(segs)+1)
	inserted := false
	for i, s := range segs {
		if isOurComment(s) {
			continue
		}
		// keep SOI and APPn segments (JFIF/EXIF) ahead of the comment
		if !inserted && i > 0 && !isAppSegment(s) {
			out = append(out, com)
			inserted = true
		}
		out = append(out, s)
	}
	if !inserted {
		return nil, malformed("jpeg has no image segments")
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + len(comment) + 4)
	if err := jis.NewSegmentList(out).Write(&buf); err != nil {
		return nil, malformed("jpeg write: %v", err)
	}
	return buf.Bytes(), nil
}

func readJPEG(data []byte) (*Metadata, error) {
	sl, err := parseJPEG(data)
	if err != nil {
		return nil, err
	}

	m := &Metadata{}
	for _, s := range sl.Segments() {
		if !isOurComment(s) {
			continue
		}
		raw := strings.TrimPrefix(string(s.Data), jpegCommentTag)
		if err := json.Unmarshal([]byte(raw), m); err != nil {
			return nil, malformed("jpeg provenance comment: %v", err)
		}
		m.HasPrompt = m.Prompt != ""
		break
	}
	return m, nil
}
