/*
Package domain contains the data model shared by the dispatcher, the executors and the transports.

It is kept free of I/O: executors and transports depend on it, never the other way around.

# Key Entities

  - ToolDescriptor: A named, schema-described capability advertised to the client.
  - Invocation: One call of a tool with a raw argument bag.
  - Request: The decoded argument bag, either APICallRequest or CLICallRequest.
  - Envelope: The uniform success/error response returned for every invocation.
  - Credential: The server-side secret. It renders as a placeholder everywhere.
*/
package domain
