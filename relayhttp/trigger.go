package relayhttp

import (
	"encoding/json"
	"io"
	"net/http"

	"torramel/notify-relay/log"
	"torramel/notify-relay/pipeline"
	"torramel/notify-relay/pipeline/aggregator"
	"torramel/notify-relay/pipeline/processor"
)

type cycleRunner interface {
	Run() (processor.RunSummary, error)
	ProcessEmailQueue(limit int) (processor.QueueSummary, error)
}

type ingester interface {
	Ingest(results []pipeline.ScrapeResult) (aggregator.IngestSummary, error)
	Flush(limit int) (aggregator.FlushSummary, error)
}

type processHandler struct {
	runner     cycleRunner
	aggregator ingester
}

type processResponse struct {
	Ingest *aggregator.IngestSummary `json:"ingest,omitempty"`
	Run    processor.RunSummary      `json:"run"`
}

// NewProcessHandler triggers one full processing cycle. A JSON array of
// scraper results in the request body is ingested into the batch queue
// before the cycle starts; an empty body just runs the cycle.
func NewProcessHandler(runner cycleRunner, agg ingester) http.Handler {
	return &processHandler{runner: runner, aggregator: agg}
}

func (h processHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var resp processResponse

	results, err := decodeScrapeResults(req.Body)
	if err != nil {
		log.Logger.WithError(err).Error("received a malformed scraper results payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if len(results) > 0 {
		sum, err := h.aggregator.Ingest(results)
		if err != nil {
			log.Logger.WithError(err).Error("scraper results ingestion failed")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp.Ingest = &sum
	}

	runSum, err := h.runner.Run()
	if err != nil {
		log.Logger.WithError(err).Error("processing cycle failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	resp.Run = runSum

	writeJson(w, resp)
}

type flushHandler struct {
	aggregator ingester
	limit      int
}

// NewFlushHandler flushes ready batch entries into email jobs without
// draining the email queue.
func NewFlushHandler(agg ingester, limit int) http.Handler {
	return &flushHandler{aggregator: agg, limit: limit}
}

func (h flushHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sum, err := h.aggregator.Flush(h.limit)
	if err != nil {
		log.Logger.WithError(err).Error("batch flush failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJson(w, sum)
}

type drainHandler struct {
	runner cycleRunner
	limit  int
}

// NewDrainHandler drains due email jobs without touching the batch queue.
func NewDrainHandler(runner cycleRunner, limit int) http.Handler {
	return &drainHandler{runner: runner, limit: limit}
}

func (h drainHandler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sum, err := h.runner.ProcessEmailQueue(h.limit)
	if err != nil {
		log.Logger.WithError(err).Error("email queue drain failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJson(w, sum)
}

func decodeScrapeResults(body io.Reader) ([]pipeline.ScrapeResult, error) {
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, nil
	}

	var results []pipeline.ScrapeResult
	if err = json.Unmarshal(b, &results); err != nil {
		return nil, err
	}

	return results, nil
}

func writeJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Logger.WithError(err).Error("unable to write JSON response")
	}
}
