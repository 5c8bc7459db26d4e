package connector

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"pairsbot/internal/models"
)

// Drop-in замена encoding/json: горячий путь фида - десериализация тиков
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FeedConfig - параметры websocket-фида нормализованных тиков
type FeedConfig struct {
	// URL websocket-эндпоинта Normalizer'а
	URL string
	// URL REST-снапшота фандинга (пусто = фандинг только из тиков)
	FundingURL string
	// Период опроса фандинга
	FundingPoll time.Duration
	// Bearer-токен Normalizer'а (пусто = без авторизации)
	Token string
	// Параметры переподключения
	WS WSConfig
}

// tickMessage - кадр тика с провода. Возраст котировок приходит
// в миллисекундах и конвертируется в Duration при сборке тика.
type tickMessage struct {
	Type       string  `json:"type"`
	PairID     int     `json:"pair_id"`
	TsMillis   int64   `json:"ts"`
	PriceA     float64 `json:"price_a"`
	PriceB     float64 `json:"price_b"`
	LiquidityA float64 `json:"liquidity_a"`
	LiquidityB float64 `json:"liquidity_b"`
	FundingA   float64 `json:"funding_a"`
	FundingB   float64 `json:"funding_b"`
	AgeAMillis int64   `json:"age_a_ms"`
	AgeBMillis int64   `json:"age_b_ms"`
}

type subscribeMessage struct {
	Op     string `json:"op"`
	PairID int    `json:"pair_id"`
}

type fundingSnapshot struct {
	Pairs map[int]struct {
		FundingA float64 `json:"funding_a"`
		FundingB float64 `json:"funding_b"`
	} `json:"pairs"`
}

// WSFeed - Feed поверх websocket-потока Normalizer'а.
// Каждой паре - собственный канал; медленный потребитель теряет старые
// тики, а не тормозит остальных. Фандинг, если задан FundingURL,
// периодически подтягивается REST-снапшотом и подмешивается в тики
// (поток даёт фандинг не на каждом кадре).
type WSFeed struct {
	cfg  FeedConfig
	conn *wsConn
	http *HTTPClient
	log  *zap.Logger

	mu      sync.Mutex
	subs    map[int]chan models.Tick
	funding map[int][2]float64

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWSFeed создаёт фид и устанавливает соединение
func NewWSFeed(cfg FeedConfig, log *zap.Logger) (*WSFeed, error) {
	if cfg.FundingPoll <= 0 {
		cfg.FundingPoll = time.Minute
	}
	if cfg.Token != "" && cfg.WS.Header == nil {
		cfg.WS.Header = http.Header{"Authorization": {"Bearer " + cfg.Token}}
	}

	f := &WSFeed{
		cfg:     cfg,
		http:    NewHTTPClient(DefaultHTTPClientConfig()),
		log:     log,
		subs:    make(map[int]chan models.Tick),
		funding: make(map[int][2]float64),
		done:    make(chan struct{}),
	}

	f.conn = newWSConn(cfg.URL, cfg.WS, log.Named("ws"))
	f.conn.onMessage = f.handleMessage
	f.conn.onDisconnect = func(err error) {
		f.log.Warn("feed stream interrupted", zap.Error(err))
	}
	if err := f.conn.connect(); err != nil {
		return nil, fmt.Errorf("feed connect: %w", err)
	}

	if cfg.FundingURL != "" {
		f.wg.Add(1)
		go f.pollFunding()
	}
	return f, nil
}

// Subscribe запрашивает поток тиков пары
func (f *WSFeed) Subscribe(pairID int) (<-chan models.Tick, error) {
	f.mu.Lock()
	if ch, ok := f.subs[pairID]; ok {
		f.mu.Unlock()
		return ch, nil
	}
	ch := make(chan models.Tick, 64)
	f.subs[pairID] = ch
	f.mu.Unlock()

	// Подписка запоминается и повторяется после переподключения
	if err := f.conn.send(subscribeMessage{Op: "subscribe", PairID: pairID}, true); err != nil {
		return nil, fmt.Errorf("feed subscribe pair %d: %w", pairID, err)
	}
	return ch, nil
}

func (f *WSFeed) handleMessage(raw []byte) {
	var msg tickMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		f.log.Warn("bad feed frame", zap.Error(err))
		return
	}
	if msg.Type != "tick" {
		return
	}

	tick := models.Tick{
		PairID:     msg.PairID,
		Timestamp:  time.UnixMilli(msg.TsMillis).UTC(),
		PriceA:     msg.PriceA,
		PriceB:     msg.PriceB,
		LiquidityA: msg.LiquidityA,
		LiquidityB: msg.LiquidityB,
		FundingA:   msg.FundingA,
		FundingB:   msg.FundingB,
		AgeA:       time.Duration(msg.AgeAMillis) * time.Millisecond,
		AgeB:       time.Duration(msg.AgeBMillis) * time.Millisecond,
	}

	f.mu.Lock()
	if tick.FundingA == 0 && tick.FundingB == 0 {
		if fr, ok := f.funding[tick.PairID]; ok {
			tick.FundingA, tick.FundingB = fr[0], fr[1]
		}
	}
	// Отправка под локом: Close под тем же локом закрывает каналы,
	// поэтому записи в закрытый канал не случается
	if ch, ok := f.subs[tick.PairID]; ok {
		select {
		case ch <- tick:
		default:
			// Потребитель отстал: свежесть важнее полноты
		}
	}
	f.mu.Unlock()
}

// pollFunding периодически подтягивает REST-снапшот фандинга
func (f *WSFeed) pollFunding() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.cfg.FundingPoll)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			if err := f.refreshFunding(); err != nil {
				f.log.Warn("funding snapshot failed", zap.Error(err))
			}
		}
	}
}

func (f *WSFeed) refreshFunding() error {
	req, err := http.NewRequest(http.MethodGet, f.cfg.FundingURL, nil)
	if err != nil {
		return err
	}
	if f.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.cfg.Token)
	}

	resp, err := f.http.DoWithTimeout(req, 10*time.Second)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("funding snapshot: status %d", resp.StatusCode)
	}

	var snap fundingSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return fmt.Errorf("funding snapshot decode: %w", err)
	}

	f.mu.Lock()
	for id, fr := range snap.Pairs {
		f.funding[id] = [2]float64{fr.FundingA, fr.FundingB}
	}
	f.mu.Unlock()
	return nil
}

// Close останавливает фид и закрывает каналы подписчиков
func (f *WSFeed) Close() error {
	select {
	case <-f.done:
		return nil
	default:
		close(f.done)
	}

	err := f.conn.close()
	f.http.Close()
	f.wg.Wait()

	f.mu.Lock()
	for id, ch := range f.subs {
		close(ch)
		delete(f.subs, id)
	}
	f.mu.Unlock()
	return err
}
