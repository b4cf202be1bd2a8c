package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

type RequestHandler interface {
	HandleRequest([]byte)
}

// Adapter connects a remote operator to the core through an MQTT broker:
// requests arrive on drone/<id>/request, telemetry replies leave on
// drone/<id>/response and the drone id is announced periodically.
type Adapter struct {
	broker            string
	connTimeout       time.Duration
	username          string
	passwd            string
	droneId           string
	announceTopic     string
	announceTimeout   time.Duration
	disconnectTimeout time.Duration
	rqTopic           string
	respTopic         string
	certCheck         bool
	client            mqtt.Client
	handler           RequestHandler
	stopChan          chan bool
	announceChan      chan bool
	responseChan      chan []byte
	logger            *zerolog.Logger
}

func NewAdapter(broker string, connTimeout time.Duration, username string,
	passwd string, droneId string, announceTopic string,
	announceTimeout time.Duration,
	disconnectTimeout time.Duration,
	certCheck bool, handler RequestHandler,
	logger *zerolog.Logger) *Adapter {

	return &Adapter{
		broker:            broker,
		connTimeout:       connTimeout,
		username:          username,
		passwd:            passwd,
		droneId:           droneId,
		announceTopic:     announceTopic,
		announceTimeout:   announceTimeout,
		disconnectTimeout: disconnectTimeout,
		rqTopic:           RequestTopic(droneId),
		respTopic:         ResponseTopic(droneId),
		certCheck:         certCheck,
		handler:           handler,
		stopChan:          make(chan bool, 1),
		announceChan:      make(chan bool, 1),
		responseChan:      make(chan []byte, 100),
		logger:            logger,
	}
}

func RequestTopic(droneId string) string {
	return fmt.Sprintf("drone/%s/request", droneId)
}

func ResponseTopic(droneId string) string {
	return fmt.Sprintf("drone/%s/response", droneId)
}

func (a *Adapter) Run() error {
	a.logger.Info().Msg("starting")
	defer a.logger.Info().Msg("stopping")

	err := a.connect()
	if err != nil {
		a.logger.Error().Err(err).Msg("failed to connect to MQTT broker")
		return err
	}

	defer a.client.Disconnect(uint(a.disconnectTimeout.Milliseconds()))

main_loop:
	for {
		select {
		case <-a.stopChan:
			break main_loop
		case <-a.announceChan:
			a.logger.Debug().Msg("announce")

			token := a.client.Publish(a.announceTopic, 2, true, a.droneId)
			if !token.WaitTimeout(a.announceTimeout) {
				a.logger.Error().Msg("timeout expired while publishing announce message")
			} else if err := token.Error(); err != nil {
				a.logger.Error().Err(err).Msg("error publishing announce message")
			}
		case resp := <-a.responseChan:
			a.client.Publish(a.respTopic, 2, false, resp)
		}
	}

	return nil
}

func (a *Adapter) Stop() {
	a.stopChan <- true
}

// SendResponse queues a reply for the operator. Replies are dropped when
// the queue is full so the control loop never blocks on the broker.
func (a *Adapter) SendResponse(resp []byte) {
	select {
	case a.responseChan <- resp:
	default:
		a.logger.Warn().Msg("response queue full, dropping response")
	}
}

func (a *Adapter) Announce() {
	select {
	case a.announceChan <- true:
	default:
	}
}

func (a *Adapter) connect() error {
	opts := mqtt.NewClientOptions().AddBroker(a.broker).SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetCredentialsProvider(func() (username string, password string) {
		return a.username, a.passwd
	})
	opts.SetClientID(a.droneId)
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !a.certCheck,
	}
	opts.SetTLSConfig(tlsConfig)
	opts.SetOnConnectHandler(func(cl mqtt.Client) {
		// subscribe to request topic
		cl.Subscribe(a.rqTopic, 2, func(cl mqtt.Client, msg mqtt.Message) {
			a.logger.Debug().Msgf("received request: %s", string(msg.Payload()))
			a.handler.HandleRequest(msg.Payload())
		})
	})
	opts.SetConnectionLostHandler(func(cl mqtt.Client, err error) {
		a.logger.Warn().Err(err).Msg("connection to broker lost")
	})

	a.client = mqtt.NewClient(opts)
	token := a.client.Connect()

	if !token.WaitTimeout(a.connTimeout) {
		return errors.New("failed to connect to broker")
	}

	err := token.Error()
	return err
}
