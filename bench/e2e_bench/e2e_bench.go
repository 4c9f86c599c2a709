package main

import (
	"context"
	"crypto/tls"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// benchUser is a signed-up account with its own cookie jar.
type benchUser struct {
	Username string
	Client   *http.Client
}

type postRecord struct {
	Author  string
	Marker  string
	Created time.Time
}

func main() {
	// CLI flags
	var serverAddr string
	var U, F, P, concurrency int
	var pollTimeout int
	var insecure bool

	flag.StringVar(&serverAddr, "server", "http://localhost:8080", "server base URL")
	flag.IntVar(&U, "users", 20, "number of users to create")
	flag.IntVar(&F, "follows", 5, "average follows per user")
	flag.IntVar(&P, "posts", 50, "number of posts to publish")
	flag.IntVar(&concurrency, "c", 10, "concurrency for posting")
	flag.IntVar(&pollTimeout, "timeout", 30, "seconds to wait for a post to become visible")
	flag.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (self-signed dev certs)")
	flag.Parse()

	ctx := context.Background()
	transport := &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure}}
	anon := newClient(transport)

	// --- 1) Sign up users ---
	fmt.Printf("Creating %d users...\n", U)
	users := make([]benchUser, 0, U)
	runID := time.Now().UnixNano()
	for i := 0; i < U; i++ {
		u := benchUser{Username: fmt.Sprintf("bench%d_%d", runID, i), Client: newClient(transport)}
		resp, err := postForm(ctx, u.Client, serverAddr+"/signup/", url.Values{
			"username":  {u.Username},
			"password1": {"bench-password"},
			"password2": {"bench-password"},
		})
		if err != nil || resp.StatusCode != http.StatusFound {
			fmt.Printf("signup %s failed: status=%v err=%v\n", u.Username, status(resp), err)
			os.Exit(1)
		}
		users = append(users, u)
	}
	fmt.Println("Users created successfully.")

	// --- 2) Create follow relationships between users ---
	fmt.Printf("Creating follows (~%d per user)...\n", F)
	followers := make(map[string][]benchUser)
	for _, u := range users {
		for j := 0; j < F; j++ {
			author := users[rand.Intn(len(users))]
			if author.Username == u.Username {
				continue
			}
			resp, err := postForm(ctx, u.Client, serverAddr+"/"+author.Username+"/follow/", nil)
			if err != nil {
				fmt.Printf("follow error: %v\n", err)
				os.Exit(1)
			}
			if resp.StatusCode == http.StatusFound && !contains(followers[author.Username], u) {
				followers[author.Username] = append(followers[author.Username], u)
			}
		}
	}
	fmt.Println("Follow relationships established.")

	// --- 3) Publish posts concurrently ---
	fmt.Printf("Publishing %d posts with concurrency %d...\n", P, concurrency)
	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency) // concurrency limiter
	postsCh := make(chan postRecord, P)

	for i := 0; i < P; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			author := users[rand.Intn(len(users))]
			marker := fmt.Sprintf("bench-post-%d-%d", runID, i)
			resp, err := postForm(ctx, author.Client, serverAddr+"/new/", url.Values{"text": {marker}})
			if err != nil || resp.StatusCode != http.StatusFound {
				fmt.Printf("post error: status=%v err=%v\n", status(resp), err)
				return
			}
			postsCh <- postRecord{Author: author.Username, Marker: marker, Created: time.Now()}
		}(i)
	}

	wg.Wait()
	close(postsCh)

	// --- 4) Poll until each post is visible ---
	fmt.Println("Checking visibility on the follow feed and the cached index...")
	var (
		mu            sync.Mutex
		followLat     []float64
		indexLat      []float64
		failCount     int
		checksWg      sync.WaitGroup
		deadlineAfter = time.Duration(pollTimeout) * time.Second
	)
	record := func(dst *[]float64, created time.Time, ok bool) {
		mu.Lock()
		defer mu.Unlock()
		if !ok {
			failCount++
			return
		}
		*dst = append(*dst, time.Since(created).Seconds()*1000)
	}

	for pr := range postsCh {
		for _, f := range followers[pr.Author] {
			checksWg.Add(1)
			go func(pr postRecord, f benchUser) {
				defer checksWg.Done()
				ok := waitFor(ctx, f.Client, serverAddr+"/follow/", pr.Marker, deadlineAfter)
				record(&followLat, pr.Created, ok)
			}(pr, f)
		}

		// The global feed only shows the newest page, which may not include
		// every post when P is larger than a page.
		checksWg.Add(1)
		go func(pr postRecord) {
			defer checksWg.Done()
			ok := waitFor(ctx, anon, serverAddr+"/", pr.Marker, deadlineAfter)
			record(&indexLat, pr.Created, ok)
		}(pr)
	}

	checksWg.Wait()

	// --- 5) Compute latency statistics and export to CSV ---
	report("follow feed", followLat)
	report("cached index", indexLat)
	fmt.Printf("Not visible before timeout: %d\n", failCount)

	f, err := os.Create("e2e_latencies.csv")
	if err != nil {
		fmt.Printf("Failed to create CSV file: %v\n", err)
		return
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	w.Write([]string{"page", "latency_ms"})
	for _, v := range followLat {
		w.Write([]string{"follow", fmt.Sprintf("%.3f", v)})
	}
	for _, v := range indexLat {
		w.Write([]string{"index", fmt.Sprintf("%.3f", v)})
	}
	fmt.Println("Saved e2e_latencies.csv")
}

func newClient(transport http.RoundTripper) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Transport: transport,
		Jar:       jar,
		Timeout:   10 * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func postForm(ctx context.Context, client *http.Client, target string, values url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(values.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp, nil
}

// waitFor polls page until its HTML contains marker or the timeout elapses.
func waitFor(ctx context.Context, client *http.Client, page, marker string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		req, _ := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
		resp, err := client.Do(req)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if strings.Contains(string(body), marker) {
				return true
			}
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}

func contains(list []benchUser, u benchUser) bool {
	for _, x := range list {
		if x.Username == u.Username {
			return true
		}
	}
	return false
}

func status(resp *http.Response) any {
	if resp == nil {
		return "none"
	}
	return resp.StatusCode
}

func report(name string, latencies []float64) {
	if len(latencies) == 0 {
		fmt.Printf("%s: no successful checks recorded\n", name)
		return
	}
	trimPercent := 1.0
	fmt.Printf("%s (ms): count=%d mean=%.2f p50=%.2f p90=%.2f p99=%.2f\n", name,
		len(latencies),
		trimmedMean(latencies, trimPercent),
		trimmedPercentile(latencies, 50, trimPercent),
		trimmedPercentile(latencies, 90, trimPercent),
		trimmedPercentile(latencies, 99, trimPercent))
}

// trimmedMean calculates the mean of a dataset excluding extreme values.
func trimmedMean(data []float64, trimPercent float64) float64 {
	data = trimmed(data, trimPercent)
	if len(data) == 0 {
		return 0
	}
	var sum float64
	for _, v := range data {
		sum += v
	}
	return sum / float64(len(data))
}

// trimmedPercentile returns a percentile value after trimming extremes.
func trimmedPercentile(data []float64, p float64, trimPercent float64) float64 {
	return percentile(trimmed(data, trimPercent), p)
}

func trimmed(data []float64, trimPercent float64) []float64 {
	sorted := append([]float64(nil), data...)
	sort.Float64s(sorted)
	trim := int(float64(len(sorted)) * trimPercent / 100.0)
	if trim*2 >= len(sorted) {
		trim = len(sorted) / 2
	}
	return sorted[trim : len(sorted)-trim]
}

// percentile calculates the requested percentile using linear interpolation.
func percentile(data []float64, p float64) float64 {
	if len(data) == 0 {
		return 0
	}
	k := (p / 100.0) * float64(len(data)-1)
	f := int(k)
	c := f + 1
	if c >= len(data) {
		return data[len(data)-1]
	}
	return data[f]*(float64(c)-k) + data[c]*(k-float64(f))
}
