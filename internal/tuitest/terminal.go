package tuitest

import "bytes"

// queryReplies maps terminal queries to canned answers: cursor position,
// then foreground and background colour in both OSC terminator forms.
var queryReplies = []struct {
	query []byte
	reply []byte
}{
	{[]byte("\x1b[6n"), []byte("\x1b[1;1R")},
	{[]byte("\x1b]10;?\x07"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x07")},
	{[]byte("\x1b]10;?\x1b\\"), []byte("\x1b]10;rgb:cccc/cccc/cccc\x1b\\")},
	{[]byte("\x1b]11;?\x07"), []byte("\x1b]11;rgb:0000/0000/0000\x07")},
	{[]byte("\x1b]11;?\x1b\\"), []byte("\x1b]11;rgb:0000/0000/0000\x1b\\")},
}

// answerQuery finds the earliest known query in buf and returns its reply
// together with the bytes that follow it.
func answerQuery(buf []byte) (reply, rest []byte, ok bool) {
	best := -1
	for i, q := range queryReplies {
		idx := bytes.Index(buf, q.query)
		if idx < 0 {
			continue
		}
		if best < 0 || idx < bytes.Index(buf, queryReplies[best].query) {
			best = i
		}
	}
	if best < 0 {
		return nil, buf, false
	}
	q := queryReplies[best]
	idx := bytes.Index(buf, q.query)
	return q.reply, buf[idx+len(q.query):], true
}
