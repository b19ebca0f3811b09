package frenet

// ResponseData is the body accessor of an outgoing REST response.
type ResponseData interface {
	Data() []byte
	SetData(data []byte)
}

// Response is an in-memory ResponseData.
type Response struct {
	data []byte
}

// NewResponse wraps a response body.
func NewResponse(data []byte) *Response {
	return &Response{data: data}
}

func (r *Response) Data() []byte { return r.data }

func (r *Response) SetData(data []byte) { r.data = data }

// RESTPatcher patches order objects returned by the REST API. It does not log.
type RESTPatcher struct{}

// NewRESTPatcher creates a REST patcher.
func NewRESTPatcher() *RESTPatcher {
	return &RESTPatcher{}
}

// Patch rewrites the frenet shipping lines of resp's body and returns resp.
func (p *RESTPatcher) Patch(resp ResponseData) ResponseData {
	p.Apply(resp)
	return resp
}

// Apply is Patch that reports the substitutions made.
func (p *RESTPatcher) Apply(resp ResponseData) []Substitution {
	out, subs := RewriteShippingLines(resp.Data())
	resp.SetData(out)
	return subs
}
