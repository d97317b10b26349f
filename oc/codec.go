// The msgp codec of the record types is maintained by hand with the msgp
// append/read primitives, because ArticlePatch needs nil-able fields decoded
// next to full Article encodings. Map keys must match the msg tags in
// types.go; TestCodecKeysMatchTags checks that.

package oc

import (
	"github.com/tinylib/msgp/msgp"
)

// MarshalMsg implements msgp.Marshaler
func (z *Article) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, 14)
	o = msgp.AppendString(o, "id")
	o = msgp.AppendBytes(o, z.ID)
	o = msgp.AppendString(o, "title")
	o = msgp.AppendBytes(o, z.Title)
	o = msgp.AppendString(o, "cover_uri")
	o = msgp.AppendBytes(o, z.CoverURI)
	o = msgp.AppendString(o, "raw_content")
	o = msgp.AppendBytes(o, z.RawContent)
	o = msgp.AppendString(o, "content")
	o = msgp.AppendBytes(o, z.Content)
	o = msgp.AppendString(o, "section_id")
	o = msgp.AppendBytes(o, z.SectionID)
	o = msgp.AppendString(o, "author_id")
	o = msgp.AppendBytes(o, z.AuthorID)
	o = msgp.AppendString(o, "tags")
	o = msgp.AppendBytes(o, z.Tags)
	o = msgp.AppendString(o, "ext_link")
	o = msgp.AppendBytes(o, z.ExtLink)
	o = msgp.AppendString(o, "space_type")
	o = msgp.AppendUint16(o, z.SpaceType)
	o = msgp.AppendString(o, "status")
	o = msgp.AppendUint16(o, z.Status)
	o = msgp.AppendString(o, "created_time")
	o = msgp.AppendUint64(o, z.CreatedTime)
	o = msgp.AppendString(o, "updated_time")
	o = msgp.AppendUint64(o, z.UpdatedTime)
	o = msgp.AppendString(o, "hash")
	o = msgp.AppendBytes(o, z.Hash)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *Article) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	var sz uint32
	sz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for sz > 0 {
		sz--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			err = msgp.WrapError(err)
			return
		}
		switch string(field) {
		case "id":
			z.ID, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "title":
			z.Title, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "cover_uri":
			z.CoverURI, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "raw_content":
			z.RawContent, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "content":
			z.Content, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "section_id":
			z.SectionID, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "author_id":
			z.AuthorID, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "tags":
			z.Tags, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "ext_link":
			z.ExtLink, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "space_type":
			z.SpaceType, bts, err = msgp.ReadUint16Bytes(bts)
		case "status":
			z.Status, bts, err = msgp.ReadUint16Bytes(bts)
		case "created_time":
			z.CreatedTime, bts, err = msgp.ReadUint64Bytes(bts)
		case "updated_time":
			z.UpdatedTime, bts, err = msgp.ReadUint64Bytes(bts)
		case "hash":
			z.Hash, bts, err = msgp.ReadBytesBytes(bts, nil)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			err = msgp.WrapError(err, string(field))
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *Article) Msgsize() (s int) {
	s = 1 + 14*(msgp.StringPrefixSize+12) + 3*msgp.Uint64Size + 2*msgp.Uint16Size
	for _, f := range [][]byte{z.ID, z.Title, z.CoverURI, z.RawContent, z.Content, z.SectionID, z.AuthorID, z.Tags, z.ExtLink, z.Hash} {
		s += msgp.BytesPrefixSize + len(f)
	}
	return
}

// MarshalMsg implements msgp.Marshaler
func (z *ArticleRef) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, 2)
	o = msgp.AppendString(o, "id")
	o = msgp.AppendBytes(o, z.ID)
	o = msgp.AppendString(o, "updated_time")
	o = msgp.AppendUint64(o, z.UpdatedTime)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *ArticleRef) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	var sz uint32
	sz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for sz > 0 {
		sz--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			err = msgp.WrapError(err)
			return
		}
		switch string(field) {
		case "id":
			z.ID, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "updated_time":
			z.UpdatedTime, bts, err = msgp.ReadUint64Bytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			err = msgp.WrapError(err, string(field))
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *ArticleRef) Msgsize() (s int) {
	s = 1 + 3 + msgp.BytesPrefixSize + len(z.ID) + 13 + msgp.Uint64Size
	return
}

// MarshalMsg implements msgp.Marshaler
func (z *IndexEntry) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, 3)
	o = msgp.AppendString(o, "h")
	o = msgp.AppendBytes(o, z.Hash)
	o = msgp.AppendString(o, "v")
	o = msgp.AppendInt64(o, z.Version)
	o = msgp.AppendString(o, "s")
	o = msgp.AppendString(o, z.Sender)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *IndexEntry) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	var sz uint32
	sz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for sz > 0 {
		sz--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			err = msgp.WrapError(err)
			return
		}
		switch string(field) {
		case "h":
			z.Hash, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "v":
			z.Version, bts, err = msgp.ReadInt64Bytes(bts)
		case "s":
			z.Sender, bts, err = msgp.ReadStringBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			err = msgp.WrapError(err, string(field))
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *IndexEntry) Msgsize() (s int) {
	s = 1 + 2 + msgp.BytesPrefixSize + len(z.Hash) + 2 + msgp.Int64Size + 2 + msgp.StringPrefixSize + len(z.Sender)
	return
}

// MarshalMsg implements msgp.Marshaler
func (z *RetryState) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, 2)
	o = msgp.AppendString(o, "q")
	o = msgp.AppendUint64(o, z.Seq)
	o = msgp.AppendString(o, "a")
	o = msgp.AppendInt(o, z.Attempts)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *RetryState) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	var sz uint32
	sz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for sz > 0 {
		sz--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			err = msgp.WrapError(err)
			return
		}
		switch string(field) {
		case "q":
			z.Seq, bts, err = msgp.ReadUint64Bytes(bts)
		case "a":
			z.Attempts, bts, err = msgp.ReadIntBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			err = msgp.WrapError(err, string(field))
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *RetryState) Msgsize() (s int) {
	s = 1 + 2 + msgp.Uint64Size + 2 + msgp.IntSize
	return
}

// MarshalMsg implements msgp.Marshaler
func (z *ArticlePatch) MarshalMsg(b []byte) (o []byte, err error) {
	o = msgp.Require(b, z.Msgsize())
	o = msgp.AppendMapHeader(o, 12)
	o = msgp.AppendString(o, "id")
	o = msgp.AppendBytes(o, z.ID)
	o = msgp.AppendString(o, "title")
	o = msgp.AppendBytes(o, z.Title)
	o = msgp.AppendString(o, "cover_uri")
	o = msgp.AppendBytes(o, z.CoverURI)
	o = msgp.AppendString(o, "raw_content")
	o = msgp.AppendBytes(o, z.RawContent)
	o = msgp.AppendString(o, "content")
	o = msgp.AppendBytes(o, z.Content)
	o = msgp.AppendString(o, "section_id")
	o = msgp.AppendBytes(o, z.SectionID)
	o = msgp.AppendString(o, "author_id")
	o = msgp.AppendBytes(o, z.AuthorID)
	o = msgp.AppendString(o, "tags")
	o = msgp.AppendBytes(o, z.Tags)
	o = msgp.AppendString(o, "ext_link")
	o = msgp.AppendBytes(o, z.ExtLink)
	o = msgp.AppendString(o, "space_type")
	o = appendOptUint16(o, z.SpaceType)
	o = msgp.AppendString(o, "status")
	o = appendOptUint16(o, z.Status)
	o = msgp.AppendString(o, "updated_time")
	o = msgp.AppendUint64(o, z.UpdatedTime)
	return
}

// UnmarshalMsg implements msgp.Unmarshaler
func (z *ArticlePatch) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var field []byte
	var sz uint32
	sz, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		err = msgp.WrapError(err)
		return
	}
	for sz > 0 {
		sz--
		field, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			err = msgp.WrapError(err)
			return
		}
		switch string(field) {
		case "id":
			z.ID, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "title":
			z.Title, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "cover_uri":
			z.CoverURI, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "raw_content":
			z.RawContent, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "content":
			z.Content, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "section_id":
			z.SectionID, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "author_id":
			z.AuthorID, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "tags":
			z.Tags, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "ext_link":
			z.ExtLink, bts, err = msgp.ReadBytesBytes(bts, nil)
		case "space_type":
			z.SpaceType, bts, err = readOptUint16(bts)
		case "status":
			z.Status, bts, err = readOptUint16(bts)
		case "updated_time":
			z.UpdatedTime, bts, err = msgp.ReadUint64Bytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			err = msgp.WrapError(err, string(field))
			return
		}
	}
	o = bts
	return
}

// Msgsize returns an upper bound estimate of the number of bytes occupied by the serialized message
func (z *ArticlePatch) Msgsize() (s int) {
	s = 1 + 12*(msgp.StringPrefixSize+12) + msgp.Uint64Size + 2*msgp.Uint16Size
	for _, f := range [][]byte{z.ID, z.Title, z.CoverURI, z.RawContent, z.Content, z.SectionID, z.AuthorID, z.Tags, z.ExtLink} {
		s += msgp.BytesPrefixSize + len(f)
	}
	return
}

func appendOptUint16(o []byte, v *uint16) []byte {
	if v == nil {
		return msgp.AppendNil(o)
	}
	return msgp.AppendUint16(o, *v)
}

func readOptUint16(bts []byte) (*uint16, []byte, error) {
	if msgp.IsNil(bts) {
		bts, err := msgp.ReadNilBytes(bts)
		return nil, bts, err
	}
	v, bts, err := msgp.ReadUint16Bytes(bts)
	if err != nil {
		return nil, bts, err
	}
	return &v, bts, nil
}
