// Package api provides the HTTP status and control API of the scanner
// host. Remote frontends query the stage and scan state over REST or
// JSON-RPC and receive pushed status updates over a WebSocket.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"radscan-go-migration/pkg/log"
)

// Server serves the scanner status API.
type Server struct {
	// Scanner interface for status queries and control
	scanner ScannerInterface

	// HTTP server
	httpServer *http.Server
	addr       string

	// WebSocket management
	wsUpgrader websocket.Upgrader
	wsClients  map[int64]*WSClient
	wsClientMu sync.RWMutex
	nextWSID   int64

	// Status subscriptions
	subscriptions map[int64]map[string][]string // clientID -> object -> attributes
	subMu         sync.RWMutex

	// Server state
	running   atomic.Bool
	startTime time.Time

	logger *log.Logger
}

// ScannerInterface defines the interface for scanner status queries
// and control.
type ScannerInterface interface {
	// GetObjectsList returns list of available status objects.
	GetObjectsList() []string

	// GetObjectStatus returns the status of one object.
	// If attrs is nil, return all attributes.
	GetObjectStatus(name string, attrs []string) map[string]any

	// StartScan launches the configured scan job. It returns
	// immediately; progress is observable through the status objects.
	StartScan() error

	// EmergencyStop halts all motion and de-energizes the motors.
	EmergencyStop()

	// GetHostState returns the current host state.
	// One of: "startup", "ready", "error", "shutdown"
	GetHostState() string
}

// Config holds server configuration.
type Config struct {
	// HTTP address to listen on (e.g., ":7125")
	Addr string

	// Scanner interface for status queries
	Scanner ScannerInterface
}

// New creates a new API server.
func New(cfg Config) *Server {
	s := &Server{
		scanner:       cfg.Scanner,
		addr:          cfg.Addr,
		wsClients:     make(map[int64]*WSClient),
		subscriptions: make(map[int64]map[string][]string),
		startTime:     time.Now(),
		logger:        log.GetLogger("api"),
	}

	s.wsUpgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins, the API is LAN-only
		},
	}

	return s
}

// Start starts the API server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// JSON-RPC endpoint
	mux.HandleFunc("/jsonrpc", s.handleJSONRPC)

	// WebSocket endpoint
	mux.HandleFunc("/websocket", s.handleWebSocket)

	// REST-style endpoints (alternative to JSON-RPC)
	mux.HandleFunc("/server/info", s.handleServerInfo)
	mux.HandleFunc("/scanner/info", s.handleScannerInfo)
	mux.HandleFunc("/scanner/objects/list", s.handleObjectsList)
	mux.HandleFunc("/scanner/objects/query", s.handleObjectsQuery)
	mux.HandleFunc("/scanner/scan/start", s.handleScanStart)
	mux.HandleFunc("/scanner/emergency_stop", s.handleEmergencyStop)

	// Wrap with CORS middleware
	corsHandler := s.corsMiddleware(mux)

	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: corsHandler,
	}

	s.running.Store(true)
	s.logger.Info("API server starting on %s", s.addr)

	go s.statusBroadcastLoop()

	return s.httpServer.ListenAndServe()
}

// Stop stops the API server.
func (s *Server) Stop() error {
	s.running.Store(false)

	// Close all WebSocket clients
	s.wsClientMu.Lock()
	for _, client := range s.wsClients {
		client.Close()
	}
	s.wsClients = make(map[int64]*WSClient)
	s.wsClientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// JSON-RPC 2.0 structures

type jsonRPCRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *jsonRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

type jsonRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONRPCError(w, nil, -32700, "Parse error")
		return
	}

	result, err := s.dispatchMethod(req.Method, req.Params, nil)
	if err != nil {
		s.writeJSONRPCError(w, req.ID, -32000, err.Error())
		return
	}

	s.writeJSONRPCResult(w, req.ID, result)
}

// dispatchMethod routes a method call to the appropriate handler.
func (s *Server) dispatchMethod(method string, params map[string]any, client *WSClient) (any, error) {
	switch method {
	case "server.info":
		return s.methodServerInfo()
	case "scanner.info":
		return s.methodScannerInfo()
	case "scanner.objects.list":
		return s.methodObjectsList()
	case "scanner.objects.query":
		return s.methodObjectsQuery(params)
	case "scanner.objects.subscribe":
		return s.methodObjectsSubscribe(params, client)
	case "scanner.scan.start":
		return s.methodScanStart()
	case "scanner.emergency_stop":
		return s.methodEmergencyStop()
	case "server.connection.identify":
		return s.methodIdentify(params)
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

// Method implementations

func (s *Server) methodServerInfo() (any, error) {
	hostState := "ready"
	if s.scanner != nil {
		hostState = s.scanner.GetHostState()
	}

	return map[string]any{
		"host_connected": hostState == "ready",
		"host_state":     hostState,
		"components": []string{
			"scanner_apis",
		},
		"failed_components": []string{},
		"api_version":       []int{1, 0, 0},
		"websocket_count":   s.clientCount(),
	}, nil
}

func (s *Server) methodScannerInfo() (any, error) {
	hostname, _ := os.Hostname()
	state := "ready"
	if s.scanner != nil {
		state = s.scanner.GetHostState()
	}

	return map[string]any{
		"state":         state,
		"state_message": "Scanner host is " + state,
		"hostname":      hostname,
		"software_name": "radscan-host",
		"uptime":        time.Since(s.startTime).Seconds(),
	}, nil
}

func (s *Server) methodObjectsList() (any, error) {
	var objects []string
	if s.scanner != nil {
		objects = s.scanner.GetObjectsList()
	} else {
		objects = []string{"mode", "stage", "scan"}
	}
	return map[string]any{"objects": objects}, nil
}

func (s *Server) methodObjectsQuery(params map[string]any) (any, error) {
	objectsParam, ok := params["objects"]
	if !ok {
		return nil, fmt.Errorf("missing 'objects' parameter")
	}

	objects, ok := objectsParam.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("'objects' must be an object")
	}

	result := make(map[string]any)
	eventtime := float64(time.Since(s.startTime).Milliseconds()) / 1000.0

	for objName, attrsVal := range objects {
		var attrs []string

		// Parse attributes: null means all, array means specific
		if attrList, ok := attrsVal.([]any); ok {
			for _, attr := range attrList {
				if attrStr, ok := attr.(string); ok {
					attrs = append(attrs, attrStr)
				}
			}
		}
		// nil/null means all attributes

		var status map[string]any
		if s.scanner != nil {
			status = s.scanner.GetObjectStatus(objName, attrs)
		} else {
			status = s.getDefaultObjectStatus(objName, attrs)
		}

		if status != nil {
			result[objName] = status
		}
	}

	return map[string]any{
		"eventtime": eventtime,
		"status":    result,
	}, nil
}

func (s *Server) methodObjectsSubscribe(params map[string]any, client *WSClient) (any, error) {
	if client == nil {
		return nil, fmt.Errorf("subscription requires WebSocket connection")
	}

	objectsParam, ok := params["objects"]
	if !ok {
		return nil, fmt.Errorf("missing 'objects' parameter")
	}

	objects, ok := objectsParam.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("'objects' must be an object")
	}

	// Store subscription
	s.subMu.Lock()
	s.subscriptions[client.id] = make(map[string][]string)
	for objName, attrsVal := range objects {
		var attrs []string
		if attrList, ok := attrsVal.([]any); ok {
			for _, attr := range attrList {
				if attrStr, ok := attr.(string); ok {
					attrs = append(attrs, attrStr)
				}
			}
		}
		s.subscriptions[client.id][objName] = attrs
	}
	s.subMu.Unlock()

	// Return initial status
	return s.methodObjectsQuery(params)
}

func (s *Server) methodScanStart() (any, error) {
	if s.scanner == nil {
		return nil, fmt.Errorf("no scanner connected")
	}
	s.logger.Info("scan start requested")
	if err := s.scanner.StartScan(); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func (s *Server) methodEmergencyStop() (any, error) {
	s.logger.Warn("emergency stop requested")
	if s.scanner != nil {
		s.scanner.EmergencyStop()
	}
	return map[string]any{}, nil
}

func (s *Server) methodIdentify(params map[string]any) (any, error) {
	clientName := "unknown"
	if name, ok := params["client_name"].(string); ok {
		clientName = name
	}
	s.logger.Info("client identified as %s", clientName)
	return map[string]any{
		"connection_id": atomic.AddInt64(&s.nextWSID, 0),
	}, nil
}

// getDefaultObjectStatus returns default status when no scanner is
// connected.
func (s *Server) getDefaultObjectStatus(name string, attrs []string) map[string]any {
	defaults := map[string]map[string]any{
		"mode": {
			"mode": "idle",
		},
		"stage": {
			"position":   []float64{0, 0},
			"z_position": 0.0,
			"homed":      false,
			"budget":     3,
		},
		"scan": {
			"state":       "standby",
			"name":        "",
			"z_pos":       0.0,
			"measured":    0,
			"total":       0,
			"saturations": 0,
			"progress":    0.0,
		},
	}

	status, ok := defaults[name]
	if !ok {
		return nil
	}

	// Filter attributes if specified
	if len(attrs) > 0 {
		filtered := make(map[string]any)
		for _, attr := range attrs {
			if val, exists := status[attr]; exists {
				filtered[attr] = val
			}
		}
		return filtered
	}

	return status
}

// REST endpoint handlers

func (s *Server) handleServerInfo(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodServerInfo()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleScannerInfo(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodScannerInfo()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleObjectsList(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodObjectsList()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleObjectsQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		s.writeJSONError(w, err)
		return
	}

	result, err := s.methodObjectsQuery(params)
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.methodScanStart()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

func (s *Server) handleEmergencyStop(w http.ResponseWriter, r *http.Request) {
	result, err := s.methodEmergencyStop()
	if err != nil {
		s.writeJSONError(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"result": result})
}

// CORS middleware to allow cross-origin requests from browser
// frontends.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Allow-Credentials", "true")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// JSON response helpers

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"code":    -32000,
			"message": err.Error(),
		},
	})
}

func (s *Server) writeJSONRPCResult(w http.ResponseWriter, id any, result any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	})
}

func (s *Server) writeJSONRPCError(w http.ResponseWriter, id any, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jsonRPCResponse{
		JSONRPC: "2.0",
		Error:   &jsonRPCError{Code: code, Message: message},
		ID:      id,
	})
}

func (s *Server) clientCount() int {
	s.wsClientMu.RLock()
	defer s.wsClientMu.RUnlock()
	return len(s.wsClients)
}
