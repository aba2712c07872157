package protocol

import (
	"encoding/json"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/protocol/target"

	"cdprepeater/pkg/model"
)

// 处理的命令与事件
const (
	MethodBrowserGetVersion    = "Browser.getVersion"
	MethodTargetCreateTarget   = "Target.createTarget"
	MethodTargetAttachToTarget = "Target.attachToTarget"
	MethodNetworkEnable        = "Network.enable"
	MethodNetworkGetAllCookies = "Network.getAllCookies"
	MethodNetworkGetBody       = "Network.getResponseBody"
	MethodFetchEnable          = "Fetch.enable"
	MethodFetchContinue        = "Fetch.continueRequest"
	MethodRuntimeEvaluate      = "Runtime.evaluate"

	EventRequestPaused    = "Fetch.requestPaused"
	EventResponseReceived = "Network.responseReceived"
	EventLoadingFinished  = "Network.loadingFinished"
	EventLoadingFailed    = "Network.loadingFailed"
)

// Spec 待发送的命令，ID 由分发器分配
type Spec struct {
	Method    string
	Params    json.RawMessage
	SessionID model.SessionID
}

func spec(method string, args any, session model.SessionID) Spec {
	s := Spec{Method: method, SessionID: session}
	if args != nil {
		// 参数均为协议库生成的结构体，序列化不会失败
		s.Params, _ = json.Marshal(args)
	}
	return s
}

// GetVersion Browser.getVersion
func GetVersion() Spec {
	return spec(MethodBrowserGetVersion, nil, "")
}

// CreateTarget Target.createTarget
func CreateTarget(url string) Spec {
	return spec(MethodTargetCreateTarget, target.NewCreateTargetArgs(url), "")
}

// AttachToTarget Target.attachToTarget，使用 flatten 会话
func AttachToTarget(id model.TargetID) Spec {
	return spec(MethodTargetAttachToTarget, target.NewAttachToTargetArgs(target.ID(id)).SetFlatten(true), "")
}

// NetworkEnable Network.enable
func NetworkEnable(session model.SessionID) Spec {
	return spec(MethodNetworkEnable, &network.EnableArgs{}, session)
}

// FetchEnable Fetch.enable，匹配全部请求
func FetchEnable(session model.SessionID) Spec {
	p := "*"
	args := &fetch.EnableArgs{Patterns: []fetch.RequestPattern{{URLPattern: &p}}}
	return spec(MethodFetchEnable, args, session)
}

// ContinueRequest Fetch.continueRequest，不做任何修改
func ContinueRequest(id model.InterceptionID, session model.SessionID) Spec {
	return spec(MethodFetchContinue, &fetch.ContinueRequestArgs{RequestID: fetch.RequestID(id)}, session)
}

// GetResponseBody Network.getResponseBody
func GetResponseBody(id model.NetworkID, session model.SessionID) Spec {
	return spec(MethodNetworkGetBody, &network.GetResponseBodyArgs{RequestID: network.RequestID(id)}, session)
}

// GetAllCookies Network.getAllCookies
func GetAllCookies() Spec {
	return spec(MethodNetworkGetAllCookies, nil, "")
}

// Evaluate Runtime.evaluate，等待 Promise 并按值返回
func Evaluate(expression string, session model.SessionID) Spec {
	args := runtime.NewEvaluateArgs(expression).SetAwaitPromise(true).SetReturnByValue(true)
	return spec(MethodRuntimeEvaluate, args, session)
}
