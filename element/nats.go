package element

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/nnsuite/nnpipe/tensor"
)

const (
	// formatHeader carries caps of the published buffer.
	formatHeader = "Nnpipe-Format"
	// querySubject is prefix of tensor query subjects.
	querySubject = "nnpipe.query."
	// replyMeta is the meta key of the query reply subject.
	replyMeta = "reply"
)

func init() {
	Register("natssrc", newNATSSrc)
	Register("natssink", newNATSSink)
	Register("tensor_query_serversrc", newQueryServerSrc)
	Register("tensor_query_serversink", newQueryServerSink)
	Register("tensor_query_client", newQueryClient)
}

// connect opens connection to the server from url, host and port
// properties, falling back to the pipeline default.
func connect(env Env) (*nats.Conn, error) {
	url := env.Props().String("url", "")
	if url == "" {
		if host, ok := env.Props().Get("host"); ok {
			url = fmt.Sprintf("nats://%s:%s", host, env.Props().String("port", "4222"))
		}
	}
	if url == "" {
		url = env.NATSURL
	}
	if url == "" {
		url = nats.DefaultURL
	}
	timeout, err := intProp(env, "timeout", 0)
	if err != nil {
		return nil, err
	}
	opts := []nats.Option{
		nats.Name("nnpipe/" + env.Element.Name),
		nats.MaxReconnects(5),
	}
	if timeout > 0 {
		opts = append(opts, nats.Timeout(time.Duration(timeout)*time.Millisecond))
	}
	conn, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return conn, nil
}

// encode packs buffer into message.
func encode(subject string, b Buffer) (*nats.Msg, error) {
	payload, err := tensor.Marshal(b.Data)
	if err != nil {
		return nil, err
	}
	msg := nats.NewMsg(subject)
	msg.Header.Set(formatHeader, b.Format.Caps().String())
	msg.Data = payload
	return msg, nil
}

// decode unpacks buffer from message.
func decode(msg *nats.Msg) (Buffer, error) {
	d, err := tensor.Unmarshal(msg.Data)
	if err != nil {
		return Buffer{}, err
	}
	f := Format{Media: MediaTensor}
	if v := msg.Header.Get(formatHeader); v != "" {
		if f, err = ParseFormat(v); err != nil {
			return Buffer{}, err
		}
	}
	return Buffer{Data: d, Format: f}, nil
}

// subscriber receives messages of a subject into a bounded channel.
type subscriber struct {
	conn  *nats.Conn
	sub   *nats.Subscription
	msgs  chan *nats.Msg
	limit int
	count int
}

func subscribe(env Env, subject string) (*subscriber, error) {
	limit, err := intProp(env, "num-buffers", -1)
	if err != nil {
		return nil, err
	}
	conn, err := connect(env)
	if err != nil {
		return nil, err
	}
	s := subscriber{
		conn:  conn,
		msgs:  make(chan *nats.Msg, max(env.QueueSize, 1)),
		limit: limit,
	}
	if s.sub, err = conn.ChanSubscribe(subject, s.msgs); err != nil {
		conn.Close()
		return nil, err
	}
	// subscription must be known to the server before the pipeline runs
	if err := conn.Flush(); err != nil {
		conn.Close()
		return nil, err
	}
	return &s, nil
}

func (s *subscriber) next(ctx context.Context) (*nats.Msg, error) {
	if s.limit >= 0 && s.count >= s.limit {
		return nil, io.EOF
	}
	select {
	case msg := <-s.msgs:
		s.count++
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *subscriber) close() error {
	err := s.sub.Unsubscribe()
	s.conn.Close()
	return err
}

// NATSSrc emits tensors published to a subject.
type NATSSrc struct {
	base
	*subscriber
}

func newNATSSrc(env Env) (Element, error) {
	subject := env.Props().String("subject", env.Props().String("sub-topic", ""))
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrBadProperty)
	}
	s, err := subscribe(env, subject)
	if err != nil {
		return nil, err
	}
	return &NATSSrc{base: newBase(env), subscriber: s}, nil
}

// Read returns next received buffer. Malformed messages are skipped.
func (s *NATSSrc) Read(ctx context.Context) (Buffer, error) {
	for {
		msg, err := s.next(ctx)
		if err != nil {
			return Buffer{}, err
		}
		b, err := decode(msg)
		if err != nil {
			s.log.Warnf("skip malformed message: %v", err)
			continue
		}
		return b, nil
	}
}

// Close unsubscribes.
func (s *NATSSrc) Close() error {
	return s.close()
}

// NATSSink publishes tensors to a subject.
type NATSSink struct {
	base
	conn    *nats.Conn
	subject string
}

func newNATSSink(env Env) (Element, error) {
	subject := env.Props().String("subject", env.Props().String("pub-topic", ""))
	if subject == "" {
		return nil, fmt.Errorf("%w: subject is required", ErrBadProperty)
	}
	conn, err := connect(env)
	if err != nil {
		return nil, err
	}
	return &NATSSink{base: newBase(env), conn: conn, subject: subject}, nil
}

// Process publishes the buffer.
func (s *NATSSink) Process(_ context.Context, _ int, in Buffer, _ EmitFunc) error {
	msg, err := encode(s.subject, in)
	if err != nil {
		return err
	}
	return s.conn.PublishMsg(msg)
}

// Close flushes pending messages and closes connection.
func (s *NATSSink) Close() error {
	err := s.conn.Flush()
	s.conn.Close()
	return err
}

// queryServers pairs server sources with server sinks by id.
var queryServers = struct {
	sync.Mutex
	conns map[string]*nats.Conn
}{conns: make(map[string]*nats.Conn)}

// QueryServerSrc receives query requests. Reply subject of the request is
// kept in buffer meta for the server sink of the same id.
type QueryServerSrc struct {
	base
	*subscriber
	id string
}

func newQueryServerSrc(env Env) (Element, error) {
	id := env.Props().String("id", "0")
	topic := env.Props().String("topic", "tensor_query")
	queryServers.Lock()
	defer queryServers.Unlock()
	if _, ok := queryServers.conns[id]; ok {
		return nil, fmt.Errorf("%w: query server id %q is in use", ErrBadProperty, id)
	}
	s, err := subscribe(env, querySubject+topic)
	if err != nil {
		return nil, err
	}
	queryServers.conns[id] = s.conn
	return &QueryServerSrc{base: newBase(env), subscriber: s, id: id}, nil
}

// Read returns next request.
func (s *QueryServerSrc) Read(ctx context.Context) (Buffer, error) {
	for {
		msg, err := s.next(ctx)
		if err != nil {
			return Buffer{}, err
		}
		b, err := decode(msg)
		if err != nil {
			s.log.Warnf("bad query request: %v", err)
			continue
		}
		b.Meta = map[string]string{replyMeta: msg.Reply}
		return b, nil
	}
}

// Close stops serving requests.
func (s *QueryServerSrc) Close() error {
	queryServers.Lock()
	delete(queryServers.conns, s.id)
	queryServers.Unlock()
	return s.close()
}

// QueryServerSink replies to requests received by the server source of
// the same id.
type QueryServerSink struct {
	base
	conn *nats.Conn
}

func newQueryServerSink(env Env) (Element, error) {
	id := env.Props().String("id", "0")
	queryServers.Lock()
	conn, ok := queryServers.conns[id]
	queryServers.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: no query server source with id %q", ErrBadProperty, id)
	}
	return &QueryServerSink{base: newBase(env), conn: conn}, nil
}

// Process sends buffer as reply.
func (s *QueryServerSink) Process(_ context.Context, _ int, in Buffer, _ EmitFunc) error {
	reply := in.Meta[replyMeta]
	if reply == "" {
		s.log.Debug("buffer without reply subject dropped")
		return nil
	}
	msg, err := encode(reply, in)
	if err != nil {
		return err
	}
	return s.conn.PublishMsg(msg)
}

// QueryClient offloads buffers to a query server and emits the replies.
type QueryClient struct {
	base
	conn    *nats.Conn
	subject string
	timeout time.Duration
}

func newQueryClient(env Env) (Element, error) {
	timeout, err := intProp(env, "timeout", 10000)
	if err != nil {
		return nil, err
	}
	conn, err := connect(env)
	if err != nil {
		return nil, err
	}
	return &QueryClient{
		base:    newBase(env),
		conn:    conn,
		subject: querySubject + env.Props().String("topic", "tensor_query"),
		timeout: time.Duration(timeout) * time.Millisecond,
	}, nil
}

// Process sends request and emits the reply.
func (c *QueryClient) Process(ctx context.Context, _ int, in Buffer, emit EmitFunc) error {
	msg, err := encode(c.subject, in)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	resp, err := c.conn.RequestMsgWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("query %s: %w", c.subject, err)
	}
	out, err := decode(resp)
	if err != nil {
		return err
	}
	return emit(0, derive(in, out.Data, out.Format))
}

// Close closes connection.
func (c *QueryClient) Close() error {
	c.conn.Close()
	return nil
}
