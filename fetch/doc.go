// Package fetch issues HTTP requests on behalf of a host application and
// normalizes their outcome.
//
// An [Engine] owns one cached client per (domain, trust configuration)
// pair, a cookie jar shared by every client and a tracker for the scratch
// files created while uploading and downloading. [Engine.Fetch] validates
// its options and builds the request synchronously, then runs the
// exchange on a worker:
//
//	engine, err := fetch.New(fetch.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer engine.Close()
//
//	call, err := engine.Fetch(ctx, fetch.Options{
//		URL:   "https://api.example.com/items",
//		Trust: &fetch.TrustSpec{Certificates: []string{"api"}},
//	})
//	if err != nil {
//		return err // invalid options, trust or body errors
//	}
//
//	res, err := call.Wait()
//
// A response outside the 2xx range is not a transport error: Wait returns
// the fully populated [Result] together with an [*HTTPStatusError] wrapping
// the same result.
//
// Every request must either carry a [TrustSpec] or set
// DisableAllSecurity. DisableAllSecurity accepts any certificate for any
// host name and removes every transport-security guarantee; it is meant
// for local development only.
package fetch
