package auditexport

import (
	"context"
)

// produce sends page numbers from..to and closes out
func produce(ctx context.Context, from int, to int, out chan<- int) <-chan struct{} {
	idleStopped := make(chan struct{})

	go func() {
		defer close(idleStopped)
		defer close(out)

		for n := from; n <= to; n++ {
			select {
			case <-ctx.Done():
				return
			case out <- n:
			}
		}
	}()

	return idleStopped
}
