package resource

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"worldsmith.dev/internal/protocol"
)

var ErrRateLimited = errors.New("resource: too many token requests")

// Poster runs a completion on the owning loop goroutine.
type Poster interface {
	Post(fn func())
}

// Op is one privileged operation waiting for, or running with, a token.
type Op struct {
	RequestID  string
	TokenType  protocol.TokenType
	ResourceID string
	Files      []File
	Queued     time.Time
}

func (o Op) String() string {
	switch o.TokenType {
	case protocol.TokenFileUpload:
		if o.ResourceID != "" {
			return fmt.Sprintf("reupload %s (%d files)", o.ResourceID, len(o.Files))
		}
		return fmt.Sprintf("upload (%d files)", len(o.Files))
	case protocol.TokenFileDelete:
		return "delete " + o.ResourceID
	default:
		return fmt.Sprintf("op %s", o.TokenType)
	}
}

type Result struct {
	Op  Op
	Err error
}

type TransferConfig struct {
	// TokenRequestsPerSecond bounds how fast operations may request tokens.
	// Zero disables the limit.
	TokenRequestsPerSecond float64
	TokenRequestBurst      int
	Logger                 *log.Logger
	Now                    func() time.Time
}

// Transfer brokers the token authorization flow. Send and Delete record a
// pending operation and ask for a token through OnTokenRequest; SupplyToken
// later matches the token to an operation and runs the HTTP call in the
// background. Completions come back through the Poster so OnComplete runs on
// the loop goroutine.
//
// Every method except Close must be called from the loop goroutine.
type Transfer struct {
	client *Client
	exec   Poster
	log    *log.Logger
	now    func() time.Time
	lim    *rate.Limiter

	// OnTokenRequest asks the authority for a token of the given type.
	OnTokenRequest func(tokenType protocol.TokenType, requestID string)
	// OnComplete reports each finished operation.
	OnComplete func(Result)

	pending  map[protocol.TokenType][]*Op
	inflight int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewTransfer(cfg TransferConfig, client *Client, exec Poster) *Transfer {
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	var lim *rate.Limiter
	if cfg.TokenRequestsPerSecond > 0 {
		burst := cfg.TokenRequestBurst
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(cfg.TokenRequestsPerSecond), burst)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Transfer{
		client:  client,
		exec:    exec,
		log:     cfg.Logger,
		now:     cfg.Now,
		lim:     lim,
		pending: map[protocol.TokenType][]*Op{},
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Send uploads files, or replaces resourceID's content when it is non-empty.
func (t *Transfer) Send(files []File, resourceID string) (string, error) {
	if len(files) == 0 {
		return "", errors.New("resource: upload without files")
	}
	return t.request(&Op{TokenType: protocol.TokenFileUpload, ResourceID: resourceID, Files: files})
}

func (t *Transfer) Delete(resourceID string) (string, error) {
	if resourceID == "" {
		return "", errors.New("resource: delete without resource id")
	}
	return t.request(&Op{TokenType: protocol.TokenFileDelete, ResourceID: resourceID})
}

func (t *Transfer) request(op *Op) (string, error) {
	if t.lim != nil && !t.lim.AllowN(t.now(), 1) {
		return "", ErrRateLimited
	}
	op.RequestID = uuid.NewString()
	op.Queued = t.now()
	t.pending[op.TokenType] = append(t.pending[op.TokenType], op)
	t.log.Printf("%s waiting for %s token (request %s)", op, op.TokenType, op.RequestID)
	if t.OnTokenRequest != nil {
		t.OnTokenRequest(op.TokenType, op.RequestID)
	}
	return op.RequestID, nil
}

// Pending reports how many operations of tokenType still wait for a token.
func (t *Transfer) Pending(tokenType protocol.TokenType) int {
	return len(t.pending[tokenType])
}

// InFlight reports how many authorized operations are still running.
func (t *Transfer) InFlight() int { return t.inflight }

// SupplyToken hands a token to the operation that asked for it. A token
// without a request id goes to the oldest operation of its type. It reports
// whether an operation took the token; tokens are single use.
func (t *Transfer) SupplyToken(token string, tokenType protocol.TokenType, requestID string) bool {
	if !tokenType.Known() {
		t.log.Printf("ignore token of unrecognized type %s", tokenType)
		return false
	}
	queue := t.pending[tokenType]
	idx := -1
	if requestID == "" {
		if len(queue) > 0 {
			idx = 0
		}
	} else {
		for i, op := range queue {
			if op.RequestID == requestID {
				idx = i
				break
			}
		}
	}
	if idx < 0 {
		t.log.Printf("unsolicited %s token (request %q)", tokenType, requestID)
		return false
	}
	op := queue[idx]
	t.pending[tokenType] = append(queue[:idx:idx], queue[idx+1:]...)
	t.run(token, *op)
	return true
}

func (t *Transfer) run(token string, op Op) {
	t.inflight++
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		var err error
		switch op.TokenType {
		case protocol.TokenFileUpload:
			err = t.client.Upload(t.ctx, token, op.Files, op.ResourceID)
		case protocol.TokenFileDelete:
			err = t.client.Delete(t.ctx, token, op.ResourceID)
		}
		t.exec.Post(func() { t.complete(Result{Op: op, Err: err}) })
	}()
}

func (t *Transfer) complete(r Result) {
	t.inflight--
	if r.Err != nil {
		t.log.Printf("%s failed: %v", r.Op, r.Err)
	} else {
		t.log.Printf("%s done in %s", r.Op, t.now().Sub(r.Op.Queued).Round(time.Millisecond))
	}
	if t.OnComplete != nil {
		t.OnComplete(r)
	}
}

// Close cancels running HTTP calls and waits for their goroutines. Their
// completions are still posted.
func (t *Transfer) Close() {
	t.cancel()
	t.wg.Wait()
}
