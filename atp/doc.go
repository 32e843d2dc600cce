/*
The package atp implements the device side of an AT command interface: the AT command parser (ATP).

An application registers a Handler for each command mnemonic it wants to serve. Every AT instance
(a serial port, a TCP connection) reads its transport, assembles command lines according to
ITU-T V.250 and dispatches each command to the registered handler. The handler answers with
MsgOut, may delegate the following raw input to itself by changing the input mode, and finally
calls Release exactly once to emit the final result code. Release, ChangeInputMode and WriteData
name the request of the event they answer, so a handler that is late never touches the command
that was dispatched after it.

References:

	[V.250]  ITU-T V.250 (2003-07) Serial asynchronous automatic dialling and control
	[27.007] 3GPP TS 27.007 AT command set for User Equipment (UE), 9.2 (+CME ERROR)
	[27.005] 3GPP TS 27.005 Use of DTE-DCE interface for SMS and CBS, 3.2.5 (+CMS ERROR)

Instance states:

	IDLE       no command in progress
	DISPATCHED the handler received a CallbackInd and did not release yet
	DELEGATED  the handler switched to an input mode other than InputModeCommand
*/
package atp
