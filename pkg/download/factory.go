package download

import (
	"time"

	"github.com/glorpus-work/fanfetch/pkg/fetch"
)

// OperationFactory builds *fetch.Operation values sharing one set of collaborators.
type OperationFactory struct {
	Transport        fetch.Transport
	Decoder          fetch.Decoder
	Main             fetch.Dispatcher
	Observer         fetch.Observer
	DecompressImages bool
	CredentialWait   time.Duration
}

var _ Factory = (*OperationFactory)(nil)

// New implements Factory.
func (f *OperationFactory) New(req fetch.Request, opts fetch.Options) (Operation, error) {
	op, err := fetch.New(req, opts, fetch.Config{
		Transport:        f.Transport,
		Decoder:          f.Decoder,
		Main:             f.Main,
		Observer:         f.Observer,
		DecompressImages: f.DecompressImages,
		CredentialWait:   f.CredentialWait,
	})
	if err != nil {
		return nil, err
	}
	return op, nil
}
