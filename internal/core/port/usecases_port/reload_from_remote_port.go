package usecases_port

import "context"

type ReloadFromRemotePort interface {
	Execute(ctx context.Context) (int, error)
}
