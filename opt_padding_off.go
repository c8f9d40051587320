//go:build uhash_opt_nopadding

package uhash

type paddedMutex struct {
	Mutex
}
