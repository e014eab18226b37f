/*
Package nnpipe allows to build and control tensor stream pipelines.

Concept

A pipeline is described with a chain of elements separated by "!":

    appsrc name=src ! tensor_converter ! tensor_filter framework=custom-easy model=add ! tensor_sink name=sink

Every element is either a source, which produces buffers, or a processor,
which handles buffers received on its input pads. Sinks are processors
without outputs. Caps literals between elements restrict the format of
the link:

    videotestsrc ! video/x-raw,format=RGB,width=224,height=224 ! tensor_converter ! tensor_sink

Named pads of request-pad elements are referenced with "name.pad":

    appsrc ! output-selector name=outs outs.src_0 ! tensor_sink name=a outs.src_1 ! tensor_sink name=b

Lifecycle

New parses the description, constructs every element and returns the
pipeline in PAUSED state. Sources are held while paused. Start and Stop
request PLAYING and PAUSED states, they don't wait for the data flow.
Close releases all resources and after it every call fails with
ErrClosedPipeline.

Data exchange

Applications push tensors into appsrc elements with InputData and receive
tensors from tensor_sink elements with listeners registered by
RegisterSinkCallback. Listeners of the same sink are called in order of
registration on the goroutine of the sink.

Controls

Selectors, valves and surface sinks are changed while the pipeline runs.
Every change is applied by the element before it handles the next buffer.
*/
package nnpipe
