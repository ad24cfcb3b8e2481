// healthprobe is a tiny liveness/readiness prober intended for container
// HEALTHCHECK directives and deploy scripts: it exits 0 when the target
// endpoint answers 200 within the timeout, 1 otherwise.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	target := flag.String("target", "http://127.0.0.1:8080/healthz", "health endpoint to probe")
	timeout := flag.Duration("timeout", 3*time.Second, "per-probe timeout")
	interval := flag.Duration("interval", 0, "poll interval; 0 means probe once and exit")
	flag.Parse()

	client := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}

	probe := func() error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(*target)
		req.Header.SetMethod(fasthttp.MethodGet)
		if err := client.DoTimeout(req, resp, *timeout); err != nil {
			return err
		}
		if resp.StatusCode() != fasthttp.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body())
		}
		return nil
	}

	if *interval <= 0 {
		if err := probe(); err != nil {
			fmt.Fprintf(os.Stderr, "unhealthy: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ok")
		return
	}

	for {
		if err := probe(); err != nil {
			fmt.Printf("%s unhealthy: %v\n", time.Now().Format(time.RFC3339), err)
		} else {
			fmt.Printf("%s ok\n", time.Now().Format(time.RFC3339))
		}
		time.Sleep(*interval)
	}
}
