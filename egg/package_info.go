// Package egg defines the contract between egg-mock and a web framework.
//
// egg-mock does not implement a framework. It boots one through the Framework interface,
// waits for the resulting Agent and Application objects to become ready, and then drives them
// through the small surface described here: lifecycle (Ready and Close), events, the
// inter-process Messenger, context creation, configuration, loaded components and the outbound
// HTTP client.
//
// A framework makes itself available by calling Register from an init function, in the same way
// as a database/sql driver:
//
//     func init() {
//         egg.Register("egg", &framework{})
//     }
//
// Alongside the interfaces, the package has a few concrete building blocks that framework
// implementations share with egg-mock: Properties (a mutable property bag with prototype
// fallback, which is also what egg-mock mutates when it mocks something), Context,
// ContextStorage, EventEmitter, BaseMessenger, HTTPClient and Config.
package egg
