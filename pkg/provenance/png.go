package provenance

import (
	"bytes"
	"compress/zlib"
	"io"

	pis "github.com/dsoprea/go-png-image-structure/v2"
)

var pngParser = pis.NewPngMediaParser()

// parsePNG splits data into chunks and checks that the stream is complete
func parsePNG(data []byte) (*pis.ChunkSlice, error) {
	mc, err := pngParser.ParseBytes(data)
	if err != nil {
		return nil, malformed("png: %v", err)
	}
	cs, ok := mc.(*pis.ChunkSlice)
	if !ok {
		return nil, malformed("png: unexpected parse result %T", mc)
	}

	chunks := cs.Chunks()
	if len(chunks) == 0 || chunks[0].Type != "IHDR" {
		return nil, malformed("png does not start with IHDR")
	}
	if chunks[len(chunks)-1].Type != "IEND" {
		return nil, malformed("truncated png, no IEND chunk")
	}
	for _, c := range chunks {
		if !c.CheckCrc32() {
			return nil, malformed("png %s chunk fails its crc", c.Type)
		}
	}
	return cs, nil
}

func newChunk(typ string, data []byte) *pis.Chunk {
	c := &pis.Chunk{Type: typ, Length: uint32(len(data)), Data: data}
	c.UpdateCrc32()
	return c
}

// iTXt layout: keyword 0x00 flag method language 0x00 translated 0x00 text
func itxt(keyword, text string) *pis.Chunk {
	var b bytes.Buffer
	b.WriteString(keyword)
	b.WriteByte(0)
	b.WriteByte(0) // uncompressed
	b.WriteByte(0) // compression method
	b.WriteByte(0) // empty language tag
	b.WriteByte(0) // empty translated keyword
	b.WriteString(text)
	return newChunk("iTXt", b.Bytes())
}

func textKeyword(c *pis.Chunk) (string, bool) {
	if c.Type != "tEXt" && c.Type != "iTXt" && c.Type != "zTXt" {
		return "", false
	}
	i := bytes.IndexByte(c.Data, 0)
	if i < 0 {
		return "", false
	}
	return string(c.Data[:i]), true
}

func embedPNG(data []byte, m Metadata) ([]byte, error) {
	cs, err := parsePNG(data)
	if err != nil {
		return nil, err
	}

	fields := []struct{ key, value string }{
		{KeyTitle, m.Title},
		{KeyDescription, m.Prompt},
		{KeyAuthor, m.Author},
		{KeyCreationTime, formatTime(m.CreatedAt)},
		{KeySoftware, m.Software},
		{KeyComment, encodeBundle(m)},
	}
	replaced := make(map[string]struct{}, len(fields))
	var inserted []*pis.Chunk
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		replaced[f.key] = struct{}{}
		inserted = append(inserted, itxt(f.key, f.value))
	}

	chunks := make([]*pis.Chunk, 0, len(cs.Chunks())+len(inserted))
	wrote := false
	for _, c := range cs.Chunks() {
		if kw, ok := textKeyword(c); ok {
			if _, drop := replaced[kw]; drop {
				continue
			}
		}
		// text goes ahead of the image data so streaming readers see it
		if !wrote && (c.Type == "IDAT" || c.Type == "IEND") {
			chunks = append(chunks, inserted...)
			wrote = true
		}
		chunks = append(chunks, c)
	}

	var out bytes.Buffer
	out.Grow(len(data) + 256)
	if err := pis.NewChunkSlice(chunks).WriteTo(&out); err != nil {
		return nil, malformed("png write: %v", err)
	}
	return out.Bytes(), nil
}

func readPNG(data []byte) (*Metadata, error) {
	cs, err := parsePNG(data)
	if err != nil {
		return nil, err
	}

	m := &Metadata{}
	for _, c := range cs.Chunks() {
		kw, ok := textKeyword(c)
		if !ok {
			continue
		}
		text, ok := chunkText(c, len(kw))
		if !ok {
			continue
		}
		switch kw {
		case KeyTitle:
			m.Title = text
		case KeyDescription:
			m.Prompt = text
			m.HasPrompt = true
		case KeyAuthor:
			m.Author = text
		case KeyCreationTime:
			m.CreatedAt = parseTime(text)
		case KeySoftware:
			m.Software = text
		case KeyComment:
			applyBundle(m, text)
		}
	}
	return m, nil
}

func chunkText(c *pis.Chunk, kwLen int) (string, bool) {
	rest := c.Data[kwLen+1:]
	switch c.Type {
	case "tEXt":
		return string(rest), true
	case "zTXt":
		if len(rest) < 1 {
			return "", false
		}
		return inflate(rest[1:])
	case "iTXt":
		if len(rest) < 2 {
			return "", false
		}
		compressed := rest[0] == 1
		rest = rest[2:]
		// skip language tag and translated keyword
		for i := 0; i < 2; i++ {
			j := bytes.IndexByte(rest, 0)
			if j < 0 {
				return "", false
			}
			rest = rest[j+1:]
		}
		if compressed {
			return inflate(rest)
		}
		return string(rest), true
	}
	return "", false
}

func inflate(b []byte) (string, bool) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return "", false
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return "", false
	}
	return string(out), true
}
