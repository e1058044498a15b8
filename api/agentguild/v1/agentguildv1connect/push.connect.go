package agentguildv1connect

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	v1 "github.com/kazz187/agentguild/api/agentguild/v1"
)

const PushNotificationServiceName = "agentguild.v1.PushNotificationService"

const (
	PushNotificationServiceGetVapidPublicKeyProcedure          = "/agentguild.v1.PushNotificationService/GetVapidPublicKey"
	PushNotificationServiceRegisterPushSubscriptionProcedure   = "/agentguild.v1.PushNotificationService/RegisterPushSubscription"
	PushNotificationServiceUnregisterPushSubscriptionProcedure = "/agentguild.v1.PushNotificationService/UnregisterPushSubscription"
)

type PushNotificationServiceHandler interface {
	GetVapidPublicKey(context.Context, *connect.Request[v1.Empty]) (*connect.Response[v1.GetVapidPublicKeyResponse], error)
	RegisterPushSubscription(context.Context, *connect.Request[v1.RegisterPushSubscriptionRequest]) (*connect.Response[v1.Empty], error)
	UnregisterPushSubscription(context.Context, *connect.Request[v1.UnregisterPushSubscriptionRequest]) (*connect.Response[v1.Empty], error)
}

func NewPushNotificationServiceHandler(svc PushNotificationServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	routes := map[string]http.Handler{
		PushNotificationServiceGetVapidPublicKeyProcedure:          connect.NewUnaryHandler(PushNotificationServiceGetVapidPublicKeyProcedure, svc.GetVapidPublicKey, opts...),
		PushNotificationServiceRegisterPushSubscriptionProcedure:   connect.NewUnaryHandler(PushNotificationServiceRegisterPushSubscriptionProcedure, svc.RegisterPushSubscription, opts...),
		PushNotificationServiceUnregisterPushSubscriptionProcedure: connect.NewUnaryHandler(PushNotificationServiceUnregisterPushSubscriptionProcedure, svc.UnregisterPushSubscription, opts...),
	}
	return "/" + PushNotificationServiceName + "/", routeByPath(routes)
}
